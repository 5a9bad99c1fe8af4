package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migrate_mysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migrate_sqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/google/wire"

	"github.com/perimetric/sentinel-pipeline/config"
	"github.com/perimetric/sentinel-pipeline/queue"
	"github.com/perimetric/sentinel-pipeline/storage/data"

	// MySQL DB Driver
	_ "github.com/go-sql-driver/mysql"
	// SQLite3 DB Driver
	_ "github.com/mattn/go-sqlite3"
	// File as a source for migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationConfig represents the DB migration config
type MigrationConfig struct {
	MigrationEnabled bool
	MigrationSource  string
}

// RelationalDBDataAccessor represents the DataAccessor implementation for RDBMS
type RelationalDBDataAccessor struct {
	detectionRepository  DetectionRepository
	assessmentRepository AssessmentRepository
	deadLetterRepository queue.DeadLetterStore
	db                   *sql.DB
}

// GetDetectionRepository returns the DetectionRepository to be used for Detection ops
func (rdbmsDataAccessor *RelationalDBDataAccessor) GetDetectionRepository() DetectionRepository {
	return rdbmsDataAccessor.detectionRepository
}

// GetAssessmentRepository returns the AssessmentRepository to be used for Assessment ops
func (rdbmsDataAccessor *RelationalDBDataAccessor) GetAssessmentRepository() AssessmentRepository {
	return rdbmsDataAccessor.assessmentRepository
}

// GetDeadLetterRepository returns the durable store for dead lettered jobs
func (rdbmsDataAccessor *RelationalDBDataAccessor) GetDeadLetterRepository() queue.DeadLetterStore {
	return rdbmsDataAccessor.deadLetterRepository
}

// Close closes the connection to DB
func (rdbmsDataAccessor *RelationalDBDataAccessor) Close() {
	db.Close()
}

type orderByClause string
type limitOption string

const (
	LIMIT_25_SUFFIX  limitOption = " LIMIT 25"
	LIMIT_100_SUFFIX limitOption = " LIMIT 100"

	baseOrderByClause       orderByClause = "ORDER BY createdAt desc, id desc"
	pageSizeWithOrder       orderByClause = baseOrderByClause + orderByClause(LIMIT_25_SUFFIX)
	largePageSizeWithOrder  orderByClause = baseOrderByClause + orderByClause(LIMIT_100_SUFFIX)
	oldestFirstWithoutLimit orderByClause = "ORDER BY createdAt asc, id asc"
)

var (
	// ErrNoRowsUpdated is returned when a UPDATE query does not change any row which is unexpected
	ErrNoRowsUpdated = errors.New("no rows updated on UPDATE query")
	// ErrInvalidStateToSave is returned when a data is not in a state we can send it to the repo as
	ErrInvalidStateToSave = errors.New("data model in invalid state to be stored")
	// ErrPaginationDeadlock is returned if both after and before is provided in pagination
	ErrPaginationDeadlock = errors.New("can not decide on pagination direction! Both after and before provided or pagination is nil")
	// ErrDuplicateRecord is returned when an insert collides with an existing primary key
	ErrDuplicateRecord = errors.New("record with same id already exists")
)

var (
	db                      *sql.DB
	dataAccessorInitializer sync.Once
	// ErrDBConnectionNeverInitialized is returned when NewDataAccessor failed to connect to DB the first time; in all subsequent calls the accessor will remain nil
	ErrDBConnectionNeverInitialized = errors.New("DB Connection never initialized")
	// RDBMSStorageInternalInjector injector for data storage related implementation
	RDBMSStorageInternalInjector = wire.NewSet(GetConnectionPool, GetDefaultCacheTTLDuration, NewDetectionRepository, NewAssessmentRepository, NewCachedAssessmentRepository, NewDeadLetterRepository, wire.Struct(new(RelationalDBDataAccessor), "db", "detectionRepository", "assessmentRepository", "deadLetterRepository"), wire.Bind(new(DataAccessor), new(*RelationalDBDataAccessor)))
)

// GetDefaultCacheTTLDuration returns the TTL for cached assessment reads
func GetDefaultCacheTTLDuration() time.Duration {
	return 2 * time.Minute
}

func panicIfNoDBConnectionPool(db *sql.DB) {
	if db == nil {
		panic(ErrDBConnectionNeverInitialized)
	}
}

// GetConnectionPool Gets the DB Connection Pool for the App
func GetConnectionPool(dbConfig config.RelationalDatabaseConfig, migrationConf *MigrationConfig) (*sql.DB, error) {
	return getConnectionPoolImpl(dbConfig, migrationConf)
}

var (
	getConnectionPoolImpl = func(dbConfig config.RelationalDatabaseConfig, migrationConf *MigrationConfig) (*sql.DB, error) {
		var err error = nil
		dataAccessorInitializer.Do(func() {
			db, err = createDBConnectionPool(dbConfig)
			if err == nil {
				err = runMigration(db, dbConfig, migrationConf)
			}
		})
		if db == nil && err == nil {
			err = ErrDBConnectionNeverInitialized
		}
		return db, err
	}

	createDBConnectionPool = func(dbConfig config.RelationalDatabaseConfig) (*sql.DB, error) {
		db, err := getDB(string(dbConfig.GetDBDialect()), dbConfig.GetDBConnectionURL())
		if err == nil {
			db.SetConnMaxLifetime(dbConfig.GetDBConnectionMaxLifetime())
			db.SetMaxIdleConns(int(dbConfig.GetMaxIdleDBConnections()))
			db.SetMaxOpenConns(int(dbConfig.GetMaxOpenDBConnections()))
			db.SetConnMaxIdleTime(dbConfig.GetDBConnectionMaxIdleTime())
		}
		return db, err
	}

	getDB = func(dialect, connectionURL string) (*sql.DB, error) {
		return sql.Open(string(dialect), connectionURL)
	}

	runMigration = func(db *sql.DB, dbConfig config.RelationalDatabaseConfig, migrationConf *MigrationConfig) error {
		if migrationConf.MigrationEnabled {
			dbDriver, err := getMigrationDriver(db, dbConfig)
			if err != nil {
				return err
			}
			dialect := string(dbConfig.GetDBDialect())
			sourceDriver, err := NewDialectSource(migrationConf.MigrationSource, dialect)
			if err != nil {
				return err
			}
			migration, err := getMigration(sourceDriver, dialect, dbDriver)
			if err != nil {
				return err
			}
			err = migration.Up()
			if err != nil && err != migrate.ErrNoChange {
				return err
			}
		}
		return nil
	}

	getMigration = func(sourceDriver *DialectSource, dialect string, dbDriver database.Driver) (*migrate.Migrate, error) {
		return migrate.NewWithInstance("dialect", sourceDriver, dialect, dbDriver)
	}

	getMigrationDriver = func(db *sql.DB, dbConfig config.RelationalDatabaseConfig) (database.Driver, error) {
		switch dbConfig.GetDBDialect() {
		case config.MySQLDialect:
			return migrate_mysql.WithInstance(db, &migrate_mysql.Config{})
		default:
			return migrate_sqlite3.WithInstance(db, &migrate_sqlite3.Config{})
		}
	}

	rollback = func(tx *sql.Tx) {
		txErr := tx.Rollback()
		if txErr != nil {
			log.Error().Err(txErr).Msg("tx rollback error")
		}
	}

	transactionalOperations = func(db *sql.DB, txOps func(tx *sql.Tx) error) (err error) {
		var tx *sql.Tx
		tx, err = db.Begin()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Msg(fmt.Sprint("recovered from in-tx panic", r))
				rollback(tx)
			}
		}()
		if err == nil {
			err = txOps(tx)
			if err == nil {
				txErr := tx.Commit()
				if txErr != nil {
					log.Error().Err(txErr).Msg("tx commit error")
					err = txErr
				}
			} else {
				rollback(tx)
			}
		}
		return err
	}

	inTransactionExec = func(tx *sql.Tx, prequeryOps func(), query string, arguments func() []interface{}, expectedRowEffected int64) (err error) {
		prequeryOps()
		var result sql.Result
		result, err = tx.Exec(query, arguments()...)
		if err == nil {
			var rowsAffected int64
			if rowsAffected, err = result.RowsAffected(); expectedRowEffected > 0 && rowsAffected != expectedRowEffected && err == nil {
				err = ErrNoRowsUpdated
			}
		}
		return err
	}

	getTxWrapperForSingleWriteQuery = func(prequeryOps func(), query string, arguments func() []interface{}) func(tx *sql.Tx) error {
		return func(tx *sql.Tx) error {
			return inTransactionExec(tx, prequeryOps, query, arguments, int64(1))
		}
	}

	transactionalSingleRowWriteExec = func(db *sql.DB, prequeryOps func(), query string, arguments func() []interface{}) error {
		return transactionalWrites(db, getTxWrapperForSingleWriteQuery(prequeryOps, query, arguments))
	}

	transactionalWrites = func(db *sql.DB, ops ...func(tx *sql.Tx) error) error {
		return transactionalOperations(db, func(tx *sql.Tx) (err error) {
			for _, op := range ops {
				err = op(tx)
				if err != nil {
					break
				}
			}
			return err
		})
	}

	getPaginationQueryFragmentWithConfigurablePageSize = func(page *data.Pagination, append bool, orderByQueryClause orderByClause) string {
		query := " "
		if page.Next != nil {
			if append {
				query = query + "AND "
			} else {
				query = query + "WHERE "
			}
			query = query + "id < '" + page.Next.ID + "' "
			query = query + "AND createdAt <= ? "
		}
		if page.Previous != nil {
			if append {
				query = query + "AND "
			} else {
				query = query + "WHERE "
			}
			query = query + "id > '" + page.Previous.ID + "' "
			query = query + "AND createdAt >= ? "
		}
		query = query + string(orderByQueryClause)
		return query
	}

	getPaginationQueryFragment = func(page *data.Pagination, append bool) string {
		return getPaginationQueryFragmentWithConfigurablePageSize(page, append, pageSizeWithOrder)
	}

	getPaginationTimestampQueryArgs = func(page *data.Pagination) []interface{} {
		times := make([]interface{}, 0, 2)
		if page.Next != nil {
			times = append(times, page.Next.Timestamp)
		}
		if page.Previous != nil {
			times = append(times, page.Previous.Timestamp)
		}
		return times
	}

	querySingleRow = func(db *sql.DB, query string, queryArgs func() []interface{}, scanArgs func() []interface{}) error {
		row := db.QueryRow(query, queryArgs()...)
		return row.Scan(scanArgs()...)
	}

	queryRows = func(db *sql.DB, query string, queryArgs func() []interface{}, scanArgs func() []interface{}) error {
		rows, err := db.Query(query, queryArgs()...)
		if err != nil {
			return err
		}
		defer func() { rows.Close() }()
		for rows.Next() {
			err = rows.Scan(scanArgs()...)
			if err != nil {
				return err
			}
		}
		return err
	}

	appendWithPaginationArgs = func(page *data.Pagination, args ...interface{}) []interface{} {
		return append(args, getPaginationTimestampQueryArgs(page)...)
	}

	nilArgs             = func() []interface{} { return nil }
	emptyOps            = func() {}
	args2SliceFnWrapper = func(args ...interface{}) func() []interface{} {
		return func() []interface{} { return args }
	}
)
