package sylog

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var messageColors = map[messageLevel]color.Attribute{
	FatalLevel: color.FgRed,
	ErrorLevel: color.FgRed,
	WarnLevel:  color.FgYellow,
	InfoLevel:  color.FgBlue,
}

var loggerLevel = InfoLevel

var logWriter io.Writer = os.Stderr

func init() {
	if l, err := strconv.Atoi(os.Getenv("MODMOUNT_MESSAGELEVEL")); err == nil {
		loggerLevel = messageLevel(l)
	}
}

// SetLevel sets the logger's level as a raw level value: 0 is default
// (Info), each higher step lets more through, up to Debug. The CLI's -v
// flag sets VerboseLevel.
func SetLevel(l int) {
	loggerLevel = messageLevel(l)
}

// GetLevel reports the current logger level.
func GetLevel() int {
	return int(loggerLevel)
}

func prefix(msgLevel messageLevel) string {
	label := fmt.Sprintf("%-8s", msgLevel.String()+":")
	if attr, ok := messageColors[msgLevel]; ok && !color.NoColor {
		return color.New(attr).Sprint(label) + " "
	}
	return label + " "
}

func writef(msgLevel messageLevel, format string, a ...interface{}) {
	if loggerLevel < msgLevel {
		return
	}

	message := fmt.Sprintf(format, a...)
	message = strings.TrimRight(message, "\n")

	if loggerLevel >= DebugLevel {
		pc, _, _, ok := runtime.Caller(2)
		details := runtime.FuncForPC(pc)
		funcName := "????()"
		if ok && details != nil {
			parts := strings.Split(details.Name(), ".")
			funcName = parts[len(parts)-1] + "()"
		}
		fmt.Fprintf(logWriter, "%s%-30s%s\n", prefix(msgLevel), funcName, message)
		return
	}

	fmt.Fprintf(logWriter, "%s%s\n", prefix(msgLevel), message)
}

// Fatalf writes a FATAL message and exits with code 255.
func Fatalf(format string, a ...interface{}) {
	writef(FatalLevel, format, a...)
	os.Exit(255)
}

// Errorf writes an ERROR message. It does not exit; the caller is expected
// to be returning the corresponding error up the stack.
func Errorf(format string, a ...interface{}) {
	writef(ErrorLevel, format, a...)
}

// Warningf writes a WARNING message.
func Warningf(format string, a ...interface{}) {
	writef(WarnLevel, format, a...)
}

// Infof writes an INFO message. Shown by default.
func Infof(format string, a ...interface{}) {
	writef(InfoLevel, format, a...)
}

// Verbosef writes a VERBOSE message, shown only with -v.
func Verbosef(format string, a ...interface{}) {
	writef(VerboseLevel, format, a...)
}

// Debugf writes a DEBUG message, shown only at DebugLevel (for example
// MODMOUNT_MESSAGELEVEL=4).
func Debugf(format string, a ...interface{}) {
	writef(DebugLevel, format, a...)
}

// Writer returns the underlying log writer, useful for redirecting
// external command output (e.g. mkfs, insmod) through the same sink.
func Writer() io.Writer {
	return logWriter
}
