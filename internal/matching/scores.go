package matching

// Scores for a single matcher hit, highest first.
const (
	ScoreExact = 1.0

	// ScoreExactFolded is an exact match that only holds under case folding.
	ScoreExactFolded = 0.95

	ScoreRegex       = 0.9
	ScoreStructural  = 0.9
	ScoreNamedParams = 0.85
	ScoreWildcard    = 0.8
	ScoreContains    = 0.75

	// ScoreCatchAll is the score of a composite with no matchers.
	ScoreCatchAll = 0.1

	ScoreNone = 0.0
)
