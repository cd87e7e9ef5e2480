package profiles

import "fmt"

// New868 creates an 868 MHz SRD band profile at the given data rate
func New868(kbps int) *Profile {
	return newProfile("868", bandCenter("868"), kbps,
		fmt.Sprintf("868.3 MHz GFSK at %d kbps", kbps))
}

func profiles868() []*Profile {
	return []*Profile{
		New868(100),
	}
}
