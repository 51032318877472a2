// Package constants is responsible for defining the constants used in the application.
package constants

import "log/slog"

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// WebServiceCmdName is the name of the web service command.
	WebServiceCmdName = "grievance-web-service"

	// IngestServiceCmdName is the name of the ingest service command.
	IngestServiceCmdName = "grievance-ingest-service"

	// DefaultLogLevel is the log level used when no verbosity flag is given.
	DefaultLogLevel = slog.LevelWarn
)

// Upstream API constants.
const (
	// DefaultAPIURL is the base URL of the Open Government Data platform.
	DefaultAPIURL = "https://api.data.gov.in/"

	// DefaultDatasetName is the name of the aviation grievances dataset, also used as table name.
	DefaultDatasetName = "aviation_grievances_api"

	// DefaultResourceID is the data.gov.in resource holding the aviation grievances.
	DefaultResourceID = "7be93611-4e76-4077-8d00-6232d01367cf"

	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 10

	// DefaultMaxOffset is the offset ceiling of a single run.
	DefaultMaxOffset = 5000
)

// Warehouse constants.
const (
	// DefaultBigQueryDataset is the BigQuery dataset the grievances are loaded into.
	DefaultBigQueryDataset = "aviation_grievances_data"

	// PartitionColumn is the ingestion date column used to partition the warehouse table.
	PartitionColumn = "inserted_date"

	// AirlineCategory is the grievance category the dashboard reports on.
	AirlineCategory = "Airline"
)
