package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// Application configuration
	ConfigDir         string
	Port              string
	BaseUrl           string
	WorkerCount       int
	SchedulerInterval int
	LockStaleAfter    int
	RequestDelayMs    int
	APIAccessKey      string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) SchedulerTick() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) LockStaleAfterDuration() time.Duration {
	return time.Duration(c.LockStaleAfter) * time.Second
}

func (c *Cfg) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}
