package services

type LogHandler interface {
	Debug(message string)
	Info(message string)
	Warn(message string)
	Error(message string, err error)
}

// Data is anything the database can persist as a log record.
type Data interface {
	DataType() string
}
