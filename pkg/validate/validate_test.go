package validate_test

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/bookden/library-service/pkg/validate"
)

type borrowPayload struct {
	BookID string `json:"bookId" validate:"required,uuid"`
}

func TestCustomValidator(t *testing.T) {
	t.Parallel()
	cv := validate.NewCustomValidator()

	require.NoError(t, cv.Validate(&borrowPayload{BookID: "f7cdc58f-2caf-4b15-9727-f89dcc629b27"}))

	err := cv.Validate(&borrowPayload{BookID: "not-a-uuid"})
	require.Error(t, err)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)

	err = cv.Validate(&borrowPayload{})
	require.Error(t, err)
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}
