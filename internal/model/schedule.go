package model

// ScheduleConfig represents a cron schedule and the timezone it fires in
type ScheduleConfig struct {
	Expression string `json:"expression"`
	Timezone   string `json:"timezone"`
}
