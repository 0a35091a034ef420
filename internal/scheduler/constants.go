package scheduler

import "github.com/robfig/cron/v3"

// Five-field expressions (minute, hour, day-of-month, month, day-of-week)
// plus descriptors such as @hourly or @every 10m.
const standardFields = cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

const timezonePrefix = "CRON_TZ="
