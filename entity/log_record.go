package entity

import "time"

// LogRecord is a log line persisted to the database for audit.
type LogRecord struct {
	Time   time.Time `json:"time" bson:"time"`
	Level  string    `json:"level" bson:"level"`
	Source string    `json:"source" bson:"source"`
	Text   string    `json:"text" bson:"text"`
}

func (l *LogRecord) DataType() string {
	return "log_record"
}
