package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger пишет в консоль и в файл с независимыми порогами уровней
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

// defaultLogger используется пакетными функциями Info/Debug/...
var defaultLogger *Logger

func newStdoutLogger() *log.Logger {
	return log.New(os.Stdout, "", log.LstdFlags)
}

// NewLogger создает логгер компонента с файлом logs/<component>_<timestamp>.log
func NewLogger(component string) (*Logger, error) {
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории logs: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join("logs", fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	return &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		fileLogger:      log.New(file, "", log.LstdFlags),
		file:            file,
		minConsoleLevel: INFO,
		minFileLevel:    TRACE,
	}, nil
}

// InitDefaultLogger инициализирует логгер по умолчанию для пакетных функций
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}
	defaultLogger = logger
	return nil
}

// CloseDefaultLogger закрывает логгер по умолчанию
func CloseDefaultLogger() {
	if defaultLogger != nil {
		_ = defaultLogger.Close()
		defaultLogger = nil
	}
}

// Close закрывает файл логгера
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// SetLevels устанавливает пороги уровней для консоли и файла
func (l *Logger) SetLevels(console, file LogLevel) {
	l.minConsoleLevel = console
	l.minFileLevel = file
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.logMessage(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.logMessage(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.logMessage(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.logMessage(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.logMessage(ERROR, format, args...) }

// logMessage внутренняя функция для логирования
func (l *Logger) logMessage(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf("[%s] %s", level.String(), fmt.Sprintf(format, args...))

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if l.consoleLogger != nil && level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

// Пакетные функции пишут через логгер по умолчанию.
// До InitDefaultLogger сообщения уходят в stdout, чтобы ранние ошибки не терялись.

func Trace(format string, args ...interface{}) { pkgLog(TRACE, format, args...) }
func Debug(format string, args ...interface{}) { pkgLog(DEBUG, format, args...) }
func Info(format string, args ...interface{})  { pkgLog(INFO, format, args...) }
func Warn(format string, args ...interface{})  { pkgLog(WARN, format, args...) }
func Error(format string, args ...interface{}) { pkgLog(ERROR, format, args...) }

func pkgLog(level LogLevel, format string, args ...interface{}) {
	if defaultLogger == nil {
		if level >= INFO {
			log.Printf("[%s] %s", level.String(), fmt.Sprintf(format, args...))
		}
		return
	}
	defaultLogger.logMessage(level, format, args...)
}
