package orchestrator

// Video prices are keyed by clip duration. An unrecognized duration charges
// the lowest tier rather than erroring, matching the pricing page.
var videoCosts = map[int]int64{
	4: 50,
	6: 75,
	8: 100,
}

const lowestVideoCost = 50

// Image prices are keyed by model id.
var imageCosts = map[string]int64{
	"ai-image":    1,
	"ai-standard": 2,
	"ai-enhanced": 3,
	"ai-advanced": 5,
	"ai-premium":  6,
}

const defaultImageCost = 5

// Cost returns the coin price of the request.
func Cost(req Request) int64 {
	if req.Kind.IsVideo() {
		if c, ok := videoCosts[req.DurationSeconds]; ok {
			return c
		}
		return lowestVideoCost
	}
	if c, ok := imageCosts[req.Model]; ok {
		return c
	}
	return defaultImageCost
}
