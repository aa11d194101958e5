package logger

import (
	"bytes"
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	textTraceString   = `^time="[0-9/:. ]{26}" severity=TRACE message="TestLogs: www\.traceExample\.com"`
	textDebugString   = `^time="[0-9/:. ]{26}" severity=DEBUG message="TestLogs: www\.debugExample\.com"`
	textInfoString    = `^time="[0-9/:. ]{26}" severity=INFO message="TestLogs: www\.infoExample\.com"`
	textWarningString = `^time="[0-9/:. ]{26}" severity=WARNING message="TestLogs: www\.warningExample\.com"`
	textErrorString   = `^time="[0-9/:. ]{26}" severity=ERROR message="TestLogs: www\.errorExample\.com"`

	jsonTraceString   = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{0,9}\},"severity":"TRACE","message":"TestLogs: www\.traceExample\.com"\}`
	jsonDebugString   = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{0,9}\},"severity":"DEBUG","message":"TestLogs: www\.debugExample\.com"\}`
	jsonInfoString    = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{0,9}\},"severity":"INFO","message":"TestLogs: www\.infoExample\.com"\}`
	jsonWarningString = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{0,9}\},"severity":"WARNING","message":"TestLogs: www\.warningExample\.com"\}`
	jsonErrorString   = `^\{"timestamp":\{"seconds":\d{1,10},"nanos":\d{0,9}\},"severity":"ERROR","message":"TestLogs: www\.errorExample\.com"\}`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, level string) {
	programLevel := new(slog.LevelVar)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, programLevel, "TestLogs: "))
	setLoggingLevel(level, programLevel)
}

func fetchLogOutputForSpecifiedSeverityLevel(level string, fns []func()) []string {
	var buf bytes.Buffer
	redirectLogsToGivenBuffer(&buf, level)

	var output []string
	for _, f := range fns {
		f()
		output = append(output, buf.String())
		buf.Reset()
	}
	return output
}

func testLoggingFunctions() []func() {
	return []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	}
}

func validateOutput(t *testing.T, expected, output []string) {
	for i := range output {
		if expected[i] == "" {
			assert.Equal(t, expected[i], output[i])
			continue
		}
		re := regexp.MustCompile(expected[i])
		assert.True(t, re.MatchString(output[i]), "got %q", output[i])
	}
}

func validateAtFormatAndSeverity(t *testing.T, format, level string, expected []string) {
	defaultLoggerFactory.format = format
	output := fetchLogOutputForSpecifiedSeverityLevel(level, testLoggingFunctions())
	validateOutput(t, expected, output)
}

func (t *LoggerTest) TestLogLevelOFF() {
	expected := []string{"", "", "", "", ""}
	validateAtFormatAndSeverity(t.T(), "json", OFF, expected)
}

func (t *LoggerTest) TestTextLogLevelERROR() {
	expected := []string{"", "", "", "", textErrorString}
	validateAtFormatAndSeverity(t.T(), "text", ERROR, expected)
}

func (t *LoggerTest) TestTextLogLevelWARNING() {
	expected := []string{"", "", "", textWarningString, textErrorString}
	validateAtFormatAndSeverity(t.T(), "text", WARNING, expected)
}

func (t *LoggerTest) TestTextLogLevelINFO() {
	expected := []string{"", "", textInfoString, textWarningString, textErrorString}
	validateAtFormatAndSeverity(t.T(), "text", INFO, expected)
}

func (t *LoggerTest) TestTextLogLevelDEBUG() {
	expected := []string{"", textDebugString, textInfoString, textWarningString, textErrorString}
	validateAtFormatAndSeverity(t.T(), "text", DEBUG, expected)
}

func (t *LoggerTest) TestTextLogLevelTRACE() {
	expected := []string{textTraceString, textDebugString, textInfoString, textWarningString, textErrorString}
	validateAtFormatAndSeverity(t.T(), "text", TRACE, expected)
}

func (t *LoggerTest) TestJSONLogLevelERROR() {
	expected := []string{"", "", "", "", jsonErrorString}
	validateAtFormatAndSeverity(t.T(), "json", ERROR, expected)
}

func (t *LoggerTest) TestJSONLogLevelTRACE() {
	expected := []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarningString, jsonErrorString}
	validateAtFormatAndSeverity(t.T(), "json", TRACE, expected)
}

func (t *LoggerTest) TestSetLoggingLevel() {
	testData := []struct {
		level    string
		expected slog.Level
	}{
		{TRACE, LevelTrace},
		{DEBUG, LevelDebug},
		{WARNING, LevelWarn},
		{ERROR, LevelError},
		{OFF, LevelOff},
	}

	for _, td := range testData {
		pl := new(slog.LevelVar)
		setLoggingLevel(td.level, pl)
		assert.Equal(t.T(), td.expected, pl.Level())
	}
}

func (t *LoggerTest) TestInitLogFile() {
	dir := t.T().TempDir()
	filePath := dir + "/log.txt"

	cfg := Config{
		FilePath: filePath,
		Severity: DEBUG,
		Format:   "text",
		Rotate:   RotateConfig{MaxFileSizeMB: 100, BackupFileCount: 2, Compress: true},
	}

	err := InitLogFile(cfg)

	require.NoError(t.T(), err)
	assert.Equal(t.T(), filePath, defaultLoggerFactory.file.Name())
	assert.Nil(t.T(), defaultLoggerFactory.sysWriter)
	assert.Equal(t.T(), "text", defaultLoggerFactory.format)
	assert.Equal(t.T(), DEBUG, defaultLoggerFactory.level)
	assert.Equal(t.T(), 100, defaultLoggerFactory.logRotateConfig.MaxFileSizeMB)
	assert.Equal(t.T(), 2, defaultLoggerFactory.logRotateConfig.BackupFileCount)
	assert.True(t.T(), defaultLoggerFactory.logRotateConfig.Compress)
}

func (t *LoggerTest) TestSetLogFormat() {
	defaultLoggerFactory = &loggerFactory{
		sysWriter:       os.Stderr,
		level:           INFO,
		logRotateConfig: DefaultRotateConfig(),
	}

	testData := []struct {
		format   string
		expected string
	}{
		{"text", textInfoString},
		{"json", jsonInfoString},
		{"", jsonInfoString},
	}

	for _, td := range testData {
		SetLogFormat(td.format)

		assert.NotNil(t.T(), defaultLoggerFactory)
		assert.NotNil(t.T(), defaultLogger)
		assert.Equal(t.T(), td.format, defaultLoggerFactory.format)

		var buf bytes.Buffer
		redirectLogsToGivenBuffer(&buf, defaultLoggerFactory.level)
		Infof("www.infoExample.com")

		re := regexp.MustCompile(td.expected)
		assert.True(t.T(), re.MatchString(buf.String()))
	}
}
