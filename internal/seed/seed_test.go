package seed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/arrival/internal/scenario"
)

const fixture = `
name: seed
user_id: u1
pois:
  - {id: r1, name: Trattoria, kind: restaurant, latitude: 40.7128, longitude: -74.006, metadata: {cuisine: italian}}
  - {id: v1, name: Valet, kind: valet_location, latitude: 40.7130, longitude: -74.0062}
reservations:
  - {id: res-1, poi_id: r1, status: CONFIRMED}
waitlist: [r1]
track: [{at: 0s, latitude: 40.7128, longitude: -74.006}]
`

func TestScenario(t *testing.T) {
	s, err := scenario.Parse(strings.NewReader(fixture))
	require.NoError(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO restaurants").
		WithArgs("r1", "Trattoria", 40.7128, -74.006, []byte(`{"cuisine":"italian"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO valet_locations").
		WithArgs("v1", "Valet", 40.7130, -74.0062, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs("res-1", "u1", "r1", "CONFIRMED", noon).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO waitlist_entries").
		WithArgs("u1", "r1").
		WillReturnError(errors.New("violates foreign key constraint"))

	res := Scenario(context.Background(), mock, s, now, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, 2, res.POIsUpserted)
	assert.Equal(t, 1, res.ReservationsUpserted)
	assert.Equal(t, 0, res.WaitlistUpserted)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "upsert waitlist r1")
	assert.Equal(t, "pois=2 reservations=1 waitlist=0 errors=1", res.Summary())
	assert.NoError(t, mock.ExpectationsWereMet())
}
