package source

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/andreiashu/pinbed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pincodeColumns = []string{"id", "code", "city", "state", "latitude", "longitude", "area_id", "area_name", "sub_area_id", "sub_area_name"}

func TestSQLLoaderRebuildsHierarchy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows(pincodeColumns).
		AddRow("p1", "500038", "Hyderabad", "Telangana", 17.4399, 78.4442, "a1", "SR Nagar", "s1", "Fatima Nagar").
		AddRow("p1", "500038", "Hyderabad", "Telangana", 17.4399, 78.4442, "a1", "SR Nagar", "s2", "BK Guda").
		AddRow("p1", "500038", "Hyderabad", "Telangana", 17.4399, 78.4442, "a2", "Ameerpet", nil, nil).
		AddRow("p2", "400050", "Mumbai", "Maharashtra", 0.0, 0.0, nil, nil, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM pincodes p")).WillReturnRows(rows)

	records, err := SQLLoader{DB: db}.LoadPincodes(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	want := pinbed.PincodeRecord{
		ID: "p1", Code: "500038", City: "Hyderabad", State: "Telangana",
		Latitude: 17.4399, Longitude: 78.4442,
		Areas: []pinbed.AreaRecord{
			{ID: "a1", Name: "SR Nagar", SubAreas: []pinbed.SubAreaRecord{{ID: "s1", Name: "Fatima Nagar"}, {ID: "s2", Name: "BK Guda"}}},
			{ID: "a2", Name: "Ameerpet", SubAreas: []pinbed.SubAreaRecord{}},
		},
	}
	assert.Equal(t, want, records[0])
	assert.Equal(t, "400050", records[1].Code)
	assert.Empty(t, records[1].Areas)
	assert.NotNil(t, records[1].Areas)
	assert.NoError(t, mock.ExpectationsWereMet())

	res := pinbed.ResolveAreasForPincode(records, "500038")
	assert.Equal(t, "Hyderabad", res.City)
	assert.Len(t, pinbed.ResolveSubAreasForArea(res.Areas, "SR Nagar"), 2)
}

func TestSQLLoaderEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM pincodes p")).WillReturnRows(sqlmock.NewRows(pincodeColumns))

	records, err := SQLLoader{DB: db}.LoadPincodes(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestSQLLoaderErrors(t *testing.T) {
	t.Run("query", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(regexp.QuoteMeta("FROM pincodes p")).WillReturnError(errors.New("relation \"pincodes\" does not exist"))
		_, err = SQLLoader{DB: db}.LoadPincodes(context.Background())
		assert.ErrorContains(t, err, "querying pincodes")
	})

	t.Run("row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		rows := sqlmock.NewRows(pincodeColumns).
			AddRow("p1", "500038", "Hyderabad", "Telangana", 17.4, 78.4, "a1", "SR Nagar", "s1", "Fatima Nagar").
			RowError(0, errors.New("connection reset"))
		mock.ExpectQuery(regexp.QuoteMeta("FROM pincodes p")).WillReturnRows(rows)
		_, err = SQLLoader{DB: db}.LoadPincodes(context.Background())
		assert.ErrorContains(t, err, "iterating pincode rows")
	})
}
