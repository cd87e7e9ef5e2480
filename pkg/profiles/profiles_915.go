package profiles

import "fmt"

// New915 creates a 915 MHz ISM band profile at the given data rate
func New915(kbps int) *Profile {
	return newProfile("915", bandCenter("915"), kbps,
		fmt.Sprintf("915 MHz GFSK at %d kbps", kbps))
}

func profiles915() []*Profile {
	return []*Profile{
		New915(100),
	}
}
