package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/pipeline"
	"github.com/perimetric/sentinel-pipeline/prune"
	"github.com/perimetric/sentinel-pipeline/storage"
	"github.com/perimetric/sentinel-pipeline/utils"
)

// ServerLifecycleListenerImpl is the implementation of ServerLifecycleListener
// used to keep the main routine around until the server is shutdown
type ServerLifecycleListenerImpl struct {
	shutdownListener chan bool
}

// StartingServer called when listening is being started
func (impl *ServerLifecycleListenerImpl) StartingServer() {}

// ServerStartFailed called when server start failed due to error
func (impl *ServerLifecycleListenerImpl) ServerStartFailed(err error) {
	go func() {
		impl.shutdownListener <- true
	}()
}

// ServerShutdownCompleted called once server has been shutdown
func (impl *ServerLifecycleListenerImpl) ServerShutdownCompleted() {
	go func() {
		impl.shutdownListener <- true
	}()
}

// HTTPServiceContainer wrapper for IoC
type HTTPServiceContainer struct {
	Configuration *config.Config
	Server        *http.Server
	DataAccessor  storage.DataAccessor
	Pipeline      *pipeline.Pipeline
	PruneService  *prune.Service
	Listener      *ServerLifecycleListenerImpl
}

const pipelineDrainTimeout = 30 * time.Second

var (
	// ErrMigrationSrcNotDir represents the error when migration source specified is not a directory
	ErrMigrationSrcNotDir = errors.New("migration source not a dir")

	exit = func(code int) {
		os.Exit(code)
	}

	consolePrintln = func(output string) {
		fmt.Println(output)
	}

	startPipeline = func(container *HTTPServiceContainer, pipelineContext context.Context) chan error {
		pipelineDone := make(chan error, 1)
		go func() {
			pipelineDone <- container.Pipeline.Run(pipelineContext)
		}()
		return pipelineDone
	}

	processKiller = utils.NewProcessKiller()
)

// NewServerListener initializes new server listener
func NewServerListener() *ServerLifecycleListenerImpl {
	return &ServerLifecycleListenerImpl{shutdownListener: make(chan bool)}
}

// NewHTTPServiceContainer provides the container holding the running service
func NewHTTPServiceContainer(configuration *config.Config, listener *ServerLifecycleListenerImpl, server *http.Server, dataAccessor storage.DataAccessor, framePipeline *pipeline.Pipeline, pruneService *prune.Service) *HTTPServiceContainer {
	return &HTTPServiceContainer{Configuration: configuration, Listener: listener, Server: server, DataAccessor: dataAccessor, Pipeline: framePipeline, PruneService: pruneService}
}

// GetConfig provides the current configuration of the service preferring the CLI specified file
func GetConfig(cliConfig *config.CLIConfig) (*config.Config, error) {
	if len(cliConfig.ConfigPath) > 0 {
		return config.GetConfiguration(cliConfig.ConfigPath)
	}
	return config.GetAutoConfiguration()
}

// GetMigrationConfig provides the migration configuration from the CLI args
func GetMigrationConfig(cliConfig *config.CLIConfig) *storage.MigrationConfig {
	return &storage.MigrationConfig{MigrationEnabled: cliConfig.IsMigrationEnabled(), MigrationSource: cliConfig.MigrationSource}
}

func parseArgs(programName string, args []string) (cliConfig *config.CLIConfig, output string, err error) {
	flags := flag.NewFlagSet(programName, flag.ContinueOnError)
	var buf bytes.Buffer
	flags.SetOutput(&buf)

	cliConfig = &config.CLIConfig{}
	flags.StringVar(&cliConfig.ConfigPath, "config", "", "Config file location")
	flags.StringVar(&cliConfig.MigrationSource, "migrate", "", "Migration source folder")
	flags.BoolVar(&cliConfig.StopOnConfigChange, "stop-on-conf-change", false, "Stop the process on configuration file change")
	flags.BoolVar(&cliConfig.DoNotWatchConfigChange, "do-not-watch-conf-change", false, "Do not watch configuration file change")

	err = flags.Parse(args)
	if err != nil {
		return nil, buf.String(), err
	}
	if cliConfig.IsMigrationEnabled() {
		fileInfo, statErr := os.Stat(cliConfig.MigrationSource)
		if statErr != nil {
			return nil, buf.String(), statErr
		}
		if !fileInfo.IsDir() {
			return nil, buf.String(), ErrMigrationSrcNotDir
		}
		absPath, pathErr := filepath.Abs(cliConfig.MigrationSource)
		if pathErr != nil {
			return nil, buf.String(), pathErr
		}
		cliConfig.MigrationSource = "file://" + absPath
	}
	return cliConfig, buf.String(), nil
}

func setupLogger(logConfig config.LogConfig) {
	zerolog.SetGlobalLevel(zerolog.Level(logConfig.GetLogLevel()))
	if logConfig.IsLoggerConfigAvailable() {
		log.Logger = log.Output(&lumberjack.Logger{
			Filename:   logConfig.GetLogFilename(),
			MaxSize:    int(logConfig.GetMaxLogFileSize()), // megabytes
			MaxBackups: int(logConfig.GetMaxLogBackups()),
			MaxAge:     int(logConfig.GetMaxAgeForALogFile()), // days
			Compress:   logConfig.IsCompressionEnabledOnLogBackups(),
		})
	}
}

func main() {
	cliConfig, output, cliCfgErr := parseArgs(os.Args[0], os.Args[1:])
	if cliCfgErr != nil {
		consolePrintln(output)
		if cliCfgErr != flag.ErrHelp {
			log.Error().Err(cliCfgErr).Msg("CLI argument error")
		}
		exit(1)
	}
	log.Print("Sentinel Pipeline - ", string(GetAppVersion()))
	serviceContainer, err := GetHTTPServer(context.Background(), cliConfig)
	if err != nil {
		log.Error().Err(err).Msg("could not setup the service")
		exit(3)
	}
	setupLogger(serviceContainer.Configuration)
	cliConfig.NotifyOnConfigFileChange(func() {
		log.Print("Config file changed")
		if cliConfig.StopOnConfigChange {
			killErr := processKiller.Kill(os.Getpid(), syscall.SIGINT)
			if killErr != nil {
				log.Error().Err(killErr).Msg("could not stop the process on config change")
			}
		}
	})
	pipelineContext, stopPipeline := context.WithCancel(context.Background())
	pipelineDone := startPipeline(serviceContainer, pipelineContext)
	serviceContainer.PruneService.Start()
	<-serviceContainer.Listener.shutdownListener
	serviceContainer.PruneService.Stop()
	stopPipeline()
	select {
	case pipelineErr := <-pipelineDone:
		if pipelineErr != nil {
			log.Error().Err(pipelineErr).Msg("pipeline stopped with error")
		}
	case <-time.After(pipelineDrainTimeout):
		log.Print("Pipeline drain timed out")
	}
	cliConfig.StopWatcher()
	log.Print("Exiting Sentinel Pipeline")
}
