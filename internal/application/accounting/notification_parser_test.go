package accounting

import (
	"testing"
	"time"

	"github.com/sitebook/backend/internal/domain/accounting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotifications_Classic(t *testing.T) {
	body := []byte(`{"eventNotifications":[
		{"realmId":"9130","dataChangeEvent":{"entities":[
			{"name":"Invoice","id":"42","operation":"Update","lastUpdated":"2024-05-01T10:00:00.000Z"},
			{"name":"Payment","id":"77","operation":"Create","lastUpdated":"bogus"}
		]}},
		{"realmId":"9131","dataChangeEvent":{"entities":[{"name":"Customer","id":"5","operation":"Delete"}]}}
	]}`)

	got, err := ParseNotifications(body)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "9130", got[0].RealmID)
	assert.Equal(t, "Invoice", got[0].EntityName)
	assert.Equal(t, "42", got[0].EntityID)
	assert.Equal(t, accounting.OperationUpdate, got[0].Operation)
	require.NotNil(t, got[0].LastUpdated)
	assert.True(t, got[0].LastUpdated.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.Empty(t, got[0].EventID)

	assert.Equal(t, accounting.OperationCreate, got[1].Operation)
	assert.Nil(t, got[1].LastUpdated)
	assert.Equal(t, "bogus", got[1].LastUpdatedRaw)

	assert.Equal(t, "9131", got[2].RealmID)
	assert.Equal(t, accounting.OperationDelete, got[2].Operation)
}

func TestParseNotifications_ColonlessOffset(t *testing.T) {
	body := []byte(`{"eventNotifications":[{"realmId":"9130","dataChangeEvent":{"entities":[
		{"name":"Invoice","id":"42","operation":"Update","lastUpdated":"2015-10-05T14:42:19-0700"},
		{"name":"Invoice","id":"43","operation":"Update","lastUpdated":"2015-10-05T14:42:19.123-0700"}
	]}}]}`)

	got, err := ParseNotifications(body)
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NotNil(t, got[0].LastUpdated)
	assert.True(t, got[0].LastUpdated.Equal(time.Date(2015, 10, 5, 21, 42, 19, 0, time.UTC)))
	assert.Equal(t, "2015-10-05T14:42:19-0700", got[0].LastUpdatedRaw)
	require.NotNil(t, got[1].LastUpdated)
	assert.Equal(t, 123*time.Millisecond, time.Duration(got[1].LastUpdated.Nanosecond()))
}

func TestParseNotifications_CloudEvents(t *testing.T) {
	body := []byte(`[
		{"specversion":"1.0","id":"evt-1","type":"qbo.invoice.updated.v1","time":"2024-05-01T10:00:00Z","intuitaccountid":"9130","intuitentityid":"42"},
		{"id":"evt-2","type":"qbo.payment.deleted.v1","intuitaccountid":"9130","intuitentityid":"77"},
		{"id":"evt-3","type":"garbage","intuitaccountid":"9130","intuitentityid":"1"}
	]`)

	got, err := ParseNotifications(body)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "evt-1", got[0].EventID)
	assert.Equal(t, "Invoice", got[0].EntityName)
	assert.Equal(t, accounting.OperationUpdate, got[0].Operation)
	assert.Equal(t, "9130", got[0].RealmID)
	assert.Equal(t, "42", got[0].EntityID)

	assert.Equal(t, "Payment", got[1].EntityName)
	assert.Equal(t, accounting.OperationDelete, got[1].Operation)

	assert.Empty(t, got[2].EntityName)
}

func TestParseNotifications_Malformed(t *testing.T) {
	testCases := map[string]string{
		"empty":        "",
		"not json":     "hello",
		"broken":       `{"eventNotifications":[`,
		"wrong shape":  `{"eventNotifications":"nope"}`,
		"array broken": `[{"id":1}]`,
	}
	for name, body := range testCases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseNotifications([]byte(body))
			assert.Error(t, err)
			var ve *accounting.ValidationError
			assert.ErrorAs(t, err, &ve)
			assert.Empty(t, got)
		})
	}
}

func TestParseNotifications_NoEntities(t *testing.T) {
	got, err := ParseNotifications([]byte(`{"eventNotifications":[]}`))
	require.NoError(t, err)
	assert.Empty(t, got)
}
