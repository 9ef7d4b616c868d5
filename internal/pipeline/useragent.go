package pipeline

import (
	"fmt"
	"sync"
)

var (
	chromeVersions  = []string{"131.0.0.0", "130.0.0.0", "129.0.0.0"}
	firefoxVersions = []string{"133.0", "132.0", "131.0"}
	platforms       = []struct{ chrome, firefox string }{
		{"Windows NT 10.0; Win64; x64", "Windows NT 10.0; Win64; x64"},
		{"Macintosh; Intel Mac OS X 10_15_7", "Macintosh; Intel Mac OS X 10.15"},
		{"X11; Linux x86_64", "X11; Linux x86_64"},
	}
)

// UserAgents hands out browser user agents, always picking one of the least
// used so far.
type UserAgents struct {
	mu     sync.Mutex
	agents []string
	counts []int
}

// NewUserAgents returns a rotator. A non-empty fixed agent disables rotation.
func NewUserAgents(fixed string) *UserAgents {
	if fixed != "" {
		return &UserAgents{agents: []string{fixed}, counts: []int{0}}
	}
	var agents []string
	for _, p := range platforms {
		for _, v := range chromeVersions {
			agents = append(agents, fmt.Sprintf(
				"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s Safari/537.36", p.chrome, v))
		}
		for _, v := range firefoxVersions {
			agents = append(agents, fmt.Sprintf(
				"Mozilla/5.0 (%s; rv:%s) Gecko/20100101 Firefox/%s", p.firefox, v, v))
		}
	}
	return &UserAgents{agents: agents, counts: make([]int, len(agents))}
}

func (u *UserAgents) Next() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	best := 0
	for i, c := range u.counts {
		if c < u.counts[best] {
			best = i
		}
	}
	u.counts[best]++
	return u.agents[best]
}

func (u *UserAgents) Len() int {
	return len(u.agents)
}
