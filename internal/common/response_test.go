package common_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/payment-mock/internal/common"
)

func TestWriteErrorUsesAppErrorCode(t *testing.T) {
	base := common.NewAppError(common.CodeNotFound, "intent not found", http.StatusNotFound, nil)
	rr := httptest.NewRecorder()
	common.WriteError(rr, fmt.Errorf("lookup: %w", base))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.JSONEq(t, `{"error":"not_found"}`, rr.Body.String())
}

func TestWriteErrorFallsBackToInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"error":"internal"}`, rr.Body.String())
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("redis down")
	err := common.Internal(cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "redis down", err.Error())
}
