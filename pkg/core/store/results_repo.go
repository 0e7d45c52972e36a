package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"actuarial_valuation/pkg/core/validate"
	"actuarial_valuation/pkg/core/valuation"
)

// Querier is the part of a pgx pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
	CREATE TABLE IF NOT EXISTS run_results (
		run_id          TEXT NOT NULL,
		model_point_set TEXT NOT NULL,
		product         TEXT NOT NULL,
		valuation_date  DATE NOT NULL,
		result_json     JSONB NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, model_point_set, product)
	);
`

// Result is the persisted outcome of one (model point set, product) run.
// Values are stored by cell name; a missing value is stored as null.
type Result struct {
	RunID         string              `json:"run_id"`
	ModelPointSet string              `json:"model_point_set"`
	Product       string              `json:"product"`
	ValuationDate time.Time           `json:"valuation_date"`
	Policies      int                 `json:"policies"`
	Periods       int                 `json:"periods"`
	Values        map[string]*float64 `json:"values"`
	FailedChecks  []string            `json:"failed_checks,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewResult flattens a summary and its reconciliation into a Result.
func NewResult(runID, set string, valuationDate time.Time, s valuation.Summary, rec validate.LinkageReport) Result {
	r := Result{
		RunID:         runID,
		ModelPointSet: set,
		Product:       s.Product,
		ValuationDate: valuationDate,
		Policies:      s.Policies,
		Periods:       s.Periods,
		Values:        make(map[string]*float64, len(s.Items)),
		FailedChecks:  rec.FailedChecks,
		CreatedAt:     time.Now().UTC(),
	}
	for _, item := range s.Items {
		if math.IsNaN(item.Value) || math.IsInf(item.Value, 0) {
			r.Values[item.Cell] = nil
			continue
		}
		v := item.Value
		r.Values[item.Cell] = &v
	}
	return r
}

// Value returns a stored value, NaN when it was missing.
func (r Result) Value(cell string) (float64, bool) {
	v, ok := r.Values[cell]
	if !ok {
		return 0, false
	}
	if v == nil {
		return math.NaN(), true
	}
	return *v, true
}

// ResultRepo handles the storage of run results.
type ResultRepo struct {
	db Querier
}

// NewResultRepo creates a repository on db. A nil db uses the shared pool
// from InitDB.
func NewResultRepo(db Querier) *ResultRepo {
	return &ResultRepo{db: db}
}

func (r *ResultRepo) conn() (Querier, error) {
	if r.db != nil {
		return r.db, nil
	}
	if p := GetPool(); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("database pool not initialized")
}

// EnsureSchema creates the results table if it does not exist.
func (r *ResultRepo) EnsureSchema(ctx context.Context) error {
	db, err := r.conn()
	if err != nil {
		return err
	}
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save persists a result. A rerun of the same run id, set and product
// replaces the earlier row.
func (r *ResultRepo) Save(ctx context.Context, res Result) error {
	db, err := r.conn()
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO run_results (run_id, model_point_set, product, valuation_date, result_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, model_point_set, product)
		DO UPDATE SET
			valuation_date = EXCLUDED.valuation_date,
			result_json = EXCLUDED.result_json,
			created_at = EXCLUDED.created_at;
	`
	_, err = db.Exec(ctx, query, res.RunID, res.ModelPointSet, res.Product, res.ValuationDate, jsonData, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// Load retrieves one stored result.
func (r *ResultRepo) Load(ctx context.Context, runID, set, product string) (*Result, error) {
	db, err := r.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT result_json FROM run_results WHERE run_id = $1 AND model_point_set = $2 AND product = $3`

	var jsonData []byte
	err = db.QueryRow(ctx, query, runID, set, product).Scan(&jsonData)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no result for run %s (%s/%s)", runID, set, product)
		}
		return nil, fmt.Errorf("failed to load result: %w", err)
	}

	var res Result
	if err := json.Unmarshal(jsonData, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &res, nil
}
