package main

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

// ErrMissingCalibration indicates that a calibration table has no entry
// valid for the requested run.
type ErrMissingCalibration struct {
	Table string
	Run   int
}

func (e ErrMissingCalibration) Error() string {
	return fmt.Sprintf("no %s calibration valid for run %d", e.Table, e.Run)
}

func ConnectToDatabase(config Configuration) (*sqlx.DB, error) {
	dbURI := fmt.Sprintf("%s:%s@(%s)/%s?parseTime=true",
		config.User, config.Passwd, config.Host, config.DBName)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

type UWireGainRow struct {
	Channel uint16  `db:"Channel"`
	Gain    float64 `db:"Gain"`
}

// getUWireGainsFromDB reads per-channel u-wire gains, in units where 300
// is nominal.
func getUWireGainsFromDB(db *sqlx.DB, runNumber int) (map[uint16]float64, error) {
	query := "SELECT Channel, Gain from UWireGains WHERE MinRun <= ? and MaxRun >= ?"
	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	gains := make(map[uint16]float64)
	for rows.Next() {
		result := UWireGainRow{}
		if err := rows.StructScan(&result); err != nil {
			return nil, err
		}
		gains[result.Channel] = result.Gain
	}
	if len(gains) == 0 {
		return nil, ErrMissingCalibration{Table: "UWireGains", Run: runNumber}
	}
	return gains, nil
}

type ShapingStageRow struct {
	Channel uint16  `db:"Channel"`
	Stage   string  `db:"Stage"`
	Time    float64 `db:"ShapingTime"`
}

// getShapersFromDB reads the electronics shaper chain for every channel.
// Stage is "integ" or "diff"; times are in nanoseconds. Stage order within
// a kind does not matter since the transfer function is a product.
func getShapersFromDB(db *sqlx.DB, runNumber int) (map[uint16]TransferFunction, error) {
	query := "SELECT Channel, Stage, ShapingTime from ElectronicsShapers WHERE MinRun <= ? and MaxRun >= ?"
	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shapers := make(map[uint16]TransferFunction)
	for rows.Next() {
		result := ShapingStageRow{}
		if err := rows.StructScan(&result); err != nil {
			return nil, err
		}
		tf := shapers[result.Channel]
		switch result.Stage {
		case "integ":
			tf.Integ = append(tf.Integ, result.Time)
		case "diff":
			tf.Diff = append(tf.Diff, result.Time)
		default:
			return nil, fmt.Errorf("unknown shaper stage %q on channel %d", result.Stage, result.Channel)
		}
		shapers[result.Channel] = tf
	}
	if len(shapers) == 0 {
		return nil, ErrMissingCalibration{Table: "ElectronicsShapers", Run: runNumber}
	}
	return shapers, nil
}

type LifetimeRow struct {
	TPC      string  `db:"TPC"`
	Lifetime float64 `db:"Lifetime"`
}

// getLifetimesFromDB reads the electron lifetime in microseconds, keyed by
// TPC half ("TPC1" for z > 0, "TPC2" otherwise).
func getLifetimesFromDB(db *sqlx.DB, runNumber int) (map[string]float64, error) {
	query := "SELECT TPC, Lifetime from ElectronLifetime WHERE MinRun <= ? and MaxRun >= ?"
	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lifetimes := make(map[string]float64)
	for rows.Next() {
		result := LifetimeRow{}
		if err := rows.StructScan(&result); err != nil {
			return nil, err
		}
		lifetimes[result.TPC] = result.Lifetime
	}
	for _, tpc := range []string{"TPC1", "TPC2"} {
		if _, ok := lifetimes[tpc]; !ok {
			return nil, ErrMissingCalibration{Table: "ElectronLifetime", Run: runNumber}
		}
	}
	return lifetimes, nil
}
