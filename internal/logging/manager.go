package logging

import (
	"fmt"
	"sort"
	"sync"
)

// ComponentSequencer - отдельный файл логов секвенсора активаций
const ComponentSequencer = "sequencer"

// LoggerManager хранит файловые логгеры подсистем сервера порталов.
// Каждая подсистема пишет в свой файл в LogDir, консоль общая.
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает общий для процесса менеджер
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{loggers: make(map[string]*Logger)}
	})
	return globalManager
}

// GetLogger возвращает логгер подсистемы; файл открывается при первом обращении
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if logger, ok := lm.loggers[component]; ok {
		return logger, nil
	}
	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logger %s: %w", component, err)
	}
	lm.loggers[component] = logger
	return logger, nil
}

// MustGetLogger не падает без файла логов: подсистема пишет только в консоль
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	logger, err := lm.GetLogger(component)
	if err == nil {
		return logger
	}
	Warn("Файл логов %s недоступен, только консоль: %v", component, err)
	return &Logger{
		component:       component,
		consoleLogger:   defaultLogger.consoleLogger,
		minConsoleLevel: INFO,
		minFileLevel:    ERROR + 1,
	}
}

// CloseAll закрывает файлы всех подсистем. Возвращает последнюю ошибку.
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	loggers := lm.loggers
	lm.loggers = make(map[string]*Logger)
	lm.mu.Unlock()

	var lastErr error
	for component, logger := range loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("close logger %s: %w", component, err)
		}
	}
	return lastErr
}

// ListComponents возвращает открытые подсистемы по алфавиту
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	components := make([]string, 0, len(lm.loggers))
	for component := range lm.loggers {
		components = append(components, component)
	}
	sort.Strings(components)
	return components
}

// SetLogLevel меняет пороги уже открытого логгера подсистемы
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	lm.mu.Lock()
	logger, ok := lm.loggers[component]
	lm.mu.Unlock()
	if !ok {
		return fmt.Errorf("logger %s not opened", component)
	}

	logger.mu.Lock()
	logger.minConsoleLevel = consoleLevel
	logger.minFileLevel = fileLevel
	logger.mu.Unlock()
	return nil
}

// GetSequencerLogger - логгер активаций, переданный секвенсору через Options.Logger
func GetSequencerLogger() *Logger {
	return GetLoggerManager().MustGetLogger(ComponentSequencer)
}
