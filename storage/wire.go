//go:build wireinject
// +build wireinject

package storage

import (
	"github.com/google/wire"

	"github.com/perimetric/sentinel-pipeline/config"
)

// GetNewDataAccessor provides the facade for accessing all the object repositories
func GetNewDataAccessor(dbConfig config.RelationalDatabaseConfig, migrationConf *MigrationConfig) (DataAccessor, error) {
	wire.Build(RDBMSStorageInternalInjector)

	return nil, nil
}
