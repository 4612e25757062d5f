package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSTKCallbackParsing(t *testing.T) {
	payload := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 475.00},
						{"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
						{"Name": "PhoneNumber", "Value": 254708374149}
					]
				}
			}
		}
	}`

	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(payload), &cb))

	assert.True(t, cb.Succeeded())
	assert.Equal(t, "ws_CO_191220191020363925", cb.ExternalRef())
	assert.Equal(t, "NLJ7RT61SV", cb.ReceiptNumber())
}

func TestSTKCallbackCancelled(t *testing.T) {
	payload := `{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-2",
				"CheckoutRequestID": "ws_CO_191220191020363926",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`

	var cb STKCallback
	require.NoError(t, json.Unmarshal([]byte(payload), &cb))

	assert.False(t, cb.Succeeded())
	assert.Equal(t, "ws_CO_191220191020363926", cb.ExternalRef())
	assert.Empty(t, cb.ReceiptNumber())
}

func TestKCBCallbackParsing(t *testing.T) {
	payload := `{
		"transactionReference": "KCB-TX-20260830-001",
		"transactionId": "FT26083000123",
		"status": "success",
		"resultDescription": "Completed",
		"amount": "475.00"
	}`

	var cb KCBCallback
	require.NoError(t, json.Unmarshal([]byte(payload), &cb))

	assert.True(t, cb.Succeeded())
	assert.Equal(t, "KCB-TX-20260830-001", cb.TransactionReference)

	cb.Status = "FAILED"
	assert.False(t, cb.Succeeded())
}
