package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/benchduo/connector"
	"github.com/BaSui01/benchduo/connector/factory"
	"github.com/BaSui01/benchduo/status"
	"github.com/BaSui01/benchduo/testutil"
	"github.com/BaSui01/benchduo/testutil/mocks"
	"github.com/BaSui01/benchduo/types"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// handlerEnv 聚合处理器测试的公共依赖。
type handlerEnv struct {
	db      *gorm.DB
	stub    *mocks.StubConnector
	factory *factory.Factory
	status  *status.Service
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	db := testutil.OpenDB(t)
	stub := mocks.NewStubConnector()
	f := factory.New(0, nil)
	f.Register(types.BackendOllama, func(host string, port int) connector.Connector {
		return stub
	})
	f.Register(types.BackendMLX, func(host string, port int) connector.Connector {
		return stub
	})

	return &handlerEnv{
		db:      db,
		stub:    stub,
		factory: f,
		status:  status.NewService(db, f, nil, nil),
	}
}

// doJSON 构造带 JSON 体的请求并执行处理函数。pathID 非空时写入 {id} 通配符。
func doJSON(t *testing.T, handler http.HandlerFunc, method, target string,
	body any, pathID string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if pathID != "" {
		req.SetPathValue("id", pathID)
	}

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// apiResponse 解码用响应信封，Data 延迟解析。
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	resp := decodeResponse(t, rec)
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}

// requireErrorCode 断言响应为失败信封且错误码匹配。
func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode types.ErrorCode) {
	t.Helper()
	require.Equal(t, wantStatus, rec.Code, "body: %s", rec.Body.String())
	resp := decodeResponse(t, rec)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	require.Equal(t, string(wantCode), resp.Error.Code)
}
