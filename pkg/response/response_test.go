package response

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ManagerAPI/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(err error, lang string) *httptest.ResponseRecorder {
	r := gin.New()
	r.GET("/", func(c *gin.Context) { Error(c, err) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{errors.InvalidInput("bad"), http.StatusBadRequest},
		{errors.InvalidReference("model"), http.StatusUnprocessableEntity},
		{errors.NotFound("missing"), http.StatusNotFound},
		{errors.Wrap(errors.Conflict("training"), "start"), http.StatusConflict},
		{errors.Precondition("no audio"), http.StatusPreconditionFailed},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, serve(tc.err, "").Code, tc.err.Error())
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	w := serve(stderrors.New("dial tcp 10.0.0.1:3306: refused"), "")
	assert.JSONEq(t, `{"code":0,"msg":"internal server error","data":null}`, w.Body.String())

	w = serve(stderrors.New("dial tcp 10.0.0.1:3306: refused"), "zh-CN")
	assert.JSONEq(t, `{"code":0,"msg":"服务器内部错误","data":null}`, w.Body.String())
}

func TestErrorLocalizedTitle(t *testing.T) {
	w := serve(errors.Conflict("voice clone r1 is training"), "zh-CN,zh;q=0.9")
	assert.Contains(t, w.Body.String(), "当前状态不允许该操作: voice clone r1 is training")

	w = serve(errors.Conflict("voice clone r1 is training"), "en-US")
	assert.Contains(t, w.Body.String(), `"msg":"voice clone r1 is training"`)
}
