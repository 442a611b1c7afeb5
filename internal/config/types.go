package config

// Config is the single on-disk configuration, JSON or YAML.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// DisplayTimezone is the one fixed timezone used for all operator-facing
	// time input and output. Scheduled instants are stored in UTC regardless.
	DisplayTimezone string `json:"display_timezone,omitempty"`

	Dispatch DispatchConfig `json:"dispatch"`
	Notify   NotifyConfig   `json:"notify,omitempty"`
	Storage  StorageConfig  `json:"storage"`

	// Destinations seeds the destinations table at boot: the chat binding and
	// display name always follow this list, everything else (footer, buttons,
	// min gap, posting flag) lives in storage once created.
	Destinations []DestinationConfig `json:"destinations"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// OperatorUserIDs is the allowlist of Telegram user IDs that may talk to
	// the bot. Everyone else is ignored.
	OperatorUserIDs []int64 `json:"operator_user_ids"`
	PollTimeout     string  `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DispatchConfig controls the periodic ready-post scan.
//
// Interval defaults to "1m". Ticks never overlap: if one tick is still
// running when the next fires, the next is deferred until it finishes.
type DispatchConfig struct {
	Interval string `json:"interval,omitempty"`
}

// NotifyConfig controls the async author-notification queue.
type NotifyConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	QueueSize  int `json:"queue_size,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type DestinationConfig struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ChatID int64  `json:"chat_id"`
}
