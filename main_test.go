package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/controllers"
	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/storage"
)

func TestGetAppVersion(t *testing.T) {
	assert.Equal(t, string(GetAppVersion()), "0.1-dev")
}

var mainFunctionBreaker = func(stop *chan os.Signal) {
	go func() {
		var client = &http.Client{Timeout: time.Second * 10}
		defer func() {
			client.CloseIdleConnections()
		}()
		for {
			response, err := client.Get("http://localhost:8080/_status")
			if err == nil {
				if response.StatusCode == 200 {
					break
				}
			}
		}
		fmt.Println("Interrupt sent")
		*stop <- os.Interrupt
	}()
}

var panicExit = func(code int) {
	panic(code)
}

func TestMainFunc(t *testing.T) {
	os.Remove("./sentinel-pipeline.sqlite3")
	t.Run("SuccessRun", func(t *testing.T) {
		var buf bytes.Buffer
		oldLogger := log.Logger
		log.Logger = log.Output(&buf)
		oldArgs := os.Args
		os.Args = []string{"sentinel-pipeline", "-migrate", "./migration/sqls"}
		oldNotify := controllers.NotifyOnInterrupt
		controllers.NotifyOnInterrupt = mainFunctionBreaker
		defer func() {
			log.Logger = oldLogger
			os.Args = oldArgs
			controllers.NotifyOnInterrupt = oldNotify
		}()
		main()
		logString := buf.String()
		assert.Contains(t, logString, "Sentinel Pipeline")
		assert.Contains(t, logString, string(GetAppVersion()))
		t.Log(logString)
		// Assert migration completed and the durable stores are reachable
		configuration, _ := config.GetAutoConfiguration()
		migrationConf := &storage.MigrationConfig{MigrationEnabled: false}
		dataAccessor, daErr := storage.GetNewDataAccessor(configuration, migrationConf)
		assert.Nil(t, daErr)
		count, countErr := dataAccessor.GetDeadLetterRepository().Count(pipeline.FrameQueueName)
		assert.Nil(t, countErr)
		assert.Equal(t, 0, count)
	})
	t.Run("HelpError", func(t *testing.T) {
		oldExit := exit
		oldArgs := os.Args
		oldConsole := consolePrintln
		exit = panicExit
		consolePrintln = func(output string) {
			assert.Contains(t, output, "Usage of")
			assert.Contains(t, output, "-config")
			assert.Contains(t, output, "-migrate")
			assert.Contains(t, output, "-stop-on-conf-change")
		}
		os.Args = []string{"sentinel-pipeline", "-h"}
		func() {
			defer func() {
				if r := recover(); r != nil {
					assert.Equal(t, 1, r.(int))
				} else {
					t.Fail()
				}
			}()
			main()
		}()
		defer func() {
			exit = oldExit
			os.Args = oldArgs
			consolePrintln = oldConsole
		}()
	})
	t.Run("ParseError", func(t *testing.T) {
		oldExit := exit
		oldArgs := os.Args
		exit = panicExit
		os.Args = []string{"sentinel-pipeline", "-migrate1=test"}
		func() {
			defer func() {
				if r := recover(); r != nil {
					assert.Equal(t, 1, r.(int))
				} else {
					t.Fail()
				}
			}()
			main()
		}()
		defer func() {
			exit = oldExit
			os.Args = oldArgs
		}()
	})
	t.Run("ConfError", func(t *testing.T) {
		badConfPath := filepath.Join(t.TempDir(), "sentinel-pipeline.cfg")
		assert.Nil(t, os.WriteFile(badConfPath, []byte("[rdbms\ndialect"), 0644))
		oldExit := exit
		oldArgs := os.Args
		exit = panicExit
		os.Args = []string{"sentinel-pipeline", "-config", badConfPath}
		func() {
			defer func() {
				if r := recover(); r != nil {
					assert.Equal(t, 3, r.(int))
				} else {
					t.Fail()
				}
			}()
			main()
		}()
		defer func() {
			exit = oldExit
			os.Args = oldArgs
		}()
	})
}

func TestParseArgs(t *testing.T) {
	absPath, _ := filepath.Abs("./migration")
	t.Run("FlagParseError", func(t *testing.T) {
		t.Parallel()
		_, _, err := parseArgs("sentinel-pipeline", []string{"-migrate1", "no such path"})
		assert.NotNil(t, err)
	})
	t.Run("NonExistentMigrationSource", func(t *testing.T) {
		t.Parallel()
		_, _, err := parseArgs("sentinel-pipeline", []string{"-migrate", "no such path"})
		assert.NotNil(t, err)
	})
	t.Run("MigrationSourceNotDir", func(t *testing.T) {
		t.Parallel()
		_, _, err := parseArgs("sentinel-pipeline", []string{"-migrate", "./go.mod"})
		assert.NotNil(t, err)
		assert.Equal(t, err, ErrMigrationSrcNotDir)
	})
	t.Run("ValidMigrationSourceAbs", func(t *testing.T) {
		t.Parallel()
		cliConfig, _, err := parseArgs("sentinel-pipeline", []string{"-migrate", absPath})
		assert.Nil(t, err)
		assert.True(t, cliConfig.IsMigrationEnabled())
		assert.Equal(t, "file://"+absPath, cliConfig.MigrationSource)
	})
	t.Run("ValidMigrationSourceRelative", func(t *testing.T) {
		t.Parallel()
		cliConfig, _, err := parseArgs("sentinel-pipeline", []string{"-migrate", "./migration"})
		assert.Nil(t, err)
		assert.True(t, cliConfig.IsMigrationEnabled())
		assert.Equal(t, "file://"+absPath, cliConfig.MigrationSource)
	})
	t.Run("StopOnConfChange", func(t *testing.T) {
		t.Parallel()
		cliConfig, _, err := parseArgs("sentinel-pipeline", []string{"-stop-on-conf-change", "-do-not-watch-conf-change"})
		assert.Nil(t, err)
		assert.True(t, cliConfig.StopOnConfigChange)
		assert.True(t, cliConfig.DoNotWatchConfigChange)
	})
}

const testLogFile = "./log-setup-test-output.log"

type MockLogConfig struct {
}

func (m MockLogConfig) GetLogLevel() config.LogLevel           { return config.Debug }
func (m MockLogConfig) GetLogFilename() string                 { return testLogFile }
func (m MockLogConfig) GetMaxLogFileSize() uint                { return 10 }
func (m MockLogConfig) GetMaxLogBackups() uint                 { return 1 }
func (m MockLogConfig) GetMaxAgeForALogFile() uint             { return 1 }
func (m MockLogConfig) IsCompressionEnabledOnLogBackups() bool { return true }
func (m MockLogConfig) IsLoggerConfigAvailable() bool          { return true }

func TestSetupLog(t *testing.T) {
	_, err := os.Stat(testLogFile)
	if err == nil {
		os.Remove(testLogFile)
	}
	oldLogger := log.Logger
	defer func() { log.Logger = oldLogger }()
	setupLogger(&MockLogConfig{})
	log.Print("unit test")
	dat, err := os.ReadFile(testLogFile)
	assert.Nil(t, err)
	assert.Contains(t, string(dat), "unit test")
}
