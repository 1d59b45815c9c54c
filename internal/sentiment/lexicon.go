package sentiment

// valence holds per-word polarity on VADER's -4..4 scale, tuned for options-selling chatter.
// "worthless" and "assigned" are outcomes for a put seller; the outcome rules score them.
var valence = map[string]float64{
	// positive
	"awesome":    3.1,
	"best":       3.2,
	"better":     1.9,
	"bullish":    2.0,
	"confident":  2.2,
	"easy":       1.9,
	"excellent":  3.2,
	"gain":       2.0,
	"gains":      2.0,
	"good":       1.9,
	"great":      3.1,
	"happy":      2.7,
	"income":     0.6,
	"love":       3.2,
	"nice":       1.8,
	"printing":   1.8,
	"profit":     1.9,
	"profitable": 2.0,
	"profits":    1.9,
	"safe":       1.9,
	"solid":      1.6,
	"strong":     2.3,
	"tendies":    2.0,
	"win":        2.8,
	"winner":     2.8,
	"winning":    2.4,
	"wins":       2.7,

	// negative
	"awful":      -2.0,
	"bad":        -2.5,
	"bagholder":  -2.0,
	"bagholding": -2.0,
	"bearish":    -1.5,
	"crash":      -1.7,
	"crashed":    -1.7,
	"drop":       -1.1,
	"dropped":    -1.1,
	"dump":       -1.6,
	"dumped":     -1.6,
	"fear":       -2.2,
	"loss":       -1.3,
	"losses":     -1.7,
	"lost":       -1.3,
	"mistake":    -1.5,
	"pain":       -2.3,
	"painful":    -2.4,
	"regret":     -2.0,
	"rekt":       -2.5,
	"risky":      -0.8,
	"scared":     -1.9,
	"tanked":     -2.5,
	"terrible":   -2.1,
	"ugly":       -2.3,
	"worse":      -2.1,
	"worst":      -3.1,
	"wrecked":    -2.3,
}

// negators flip the valence of a word within the next three tokens
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "without": true, "nor": true,
	"don't": true, "dont": true, "doesn't": true, "doesnt": true,
	"didn't": true, "didnt": true, "isn't": true, "isnt": true,
	"wasn't": true, "wasnt": true, "can't": true, "cant": true,
	"won't": true, "wont": true, "aren't": true, "arent": true,
}

const (
	// alpha normalizes the raw valence sum into [-1, 1]
	alpha = 15.0
	// negationScalar is VADER's dampening factor for a negated word
	negationScalar = -0.74
	negationWindow = 3
)
