package internal

import (
	"fmt"
	"log"
	"time"

	"redsys/entity"
	"redsys/services"
)

// Logger writes named log lines to stdout and, when a database is attached,
// persists them for audit. Debug lines are printed only in debug mode and
// never persisted.
type Logger struct {
	name     string
	debug    bool
	database services.Database
}

func NewLogger(name string, debug bool, database services.Database) *Logger {
	return &Logger{
		name:     name,
		debug:    debug,
		database: database,
	}
}

func (l *Logger) Debug(message string) {
	if !l.debug {
		return
	}
	log.Printf("%s: DEBUG: %s", l.name, message)
}

func (l *Logger) Info(message string) {
	log.Printf("%s: %s", l.name, message)
	l.persist("info", message)
}

func (l *Logger) Warn(message string) {
	log.Printf("%s: WARN: %s", l.name, message)
	l.persist("warn", message)
}

func (l *Logger) Error(message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s; %v", message, err)
	}
	log.Printf("%s: ERROR: %s", l.name, message)
	l.persist("error", message)
}

func (l *Logger) persist(level, message string) {
	if l.database == nil {
		return
	}
	record := &entity.LogRecord{
		Time:   time.Now(),
		Level:  level,
		Source: l.name,
		Text:   message,
	}
	if err := l.database.WriteLogMessage(record); err != nil {
		log.Printf("%s: ERROR: write log record; %v", l.name, err)
	}
}
