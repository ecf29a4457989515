package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return New(url, 2*time.Second, 5*time.Second, time.Second)
}

func TestAnalyzeParsesFlatResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a1", r.FormValue("analysis_id"))
		assert.Equal(t, "u@example.com", r.FormValue("user_email"))
		_, _, err := r.FormFile("image")
		assert.NoError(t, err)
		w.Write([]byte(`{"confidence":0.87,"processing_time":1.5}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Analyze(context.Background(), Request{
		Image:      []byte("img"),
		UserEmail:  "u@example.com",
		AnalysisID: "a1",
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.87, res.Confidence, 1e-9)
	assert.Equal(t, int64(1500), res.ProcessingMS)
}

func TestAnalyzeNormalizesPercentScale(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"confidence":87,"processing_ms":200}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Analyze(context.Background(), Request{Image: []byte("img")})
	require.NoError(t, err)
	assert.InDelta(t, 0.87, res.Confidence, 1e-9)
	assert.Equal(t, int64(200), res.ProcessingMS)
}

func TestAnalyzeTakesTopPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"predictions":[{"label":"bolt","confidence":62},{"label":"nut","confidence":91}]}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Analyze(context.Background(), Request{Image: []byte("img")})
	require.NoError(t, err)
	assert.InDelta(t, 0.91, res.Confidence, 1e-9)
	require.Len(t, res.Predictions, 2)
	assert.InDelta(t, 0.62, res.Predictions[0].Confidence, 1e-9)
}

func TestAnalyzeClassifies4xxAsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), Request{Image: []byte("img")})
	aerr := Classify(err)
	assert.Equal(t, KindRejected, aerr.Kind)
	assert.Equal(t, http.StatusRequestEntityTooLarge, aerr.Status)
	assert.False(t, aerr.Retryable())
}

func TestAnalyzeClassifies5xxAsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), Request{Image: []byte("img")})
	aerr := Classify(err)
	assert.Equal(t, KindRemote, aerr.Kind)
	assert.True(t, aerr.Retryable())
}

func TestAnalyzeClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := New(srv.URL, 20*time.Millisecond, 20*time.Millisecond, time.Second)
	_, err := c.Analyze(context.Background(), Request{Image: []byte("img")})
	aerr := Classify(err)
	assert.Equal(t, KindTimeout, aerr.Kind)
	assert.True(t, aerr.Retryable())
}

func TestAnalyzeClassifiesConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), Request{Image: []byte("img")})
	aerr := Classify(err)
	assert.Equal(t, KindUnavailable, aerr.Kind)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, testClient(srv.URL).Health(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	err := testClient(down.URL).Health(context.Background())
	aerr := Classify(err)
	assert.Equal(t, KindUnavailable, aerr.Kind)
}

func TestMalformedResponseIsRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not-json`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Analyze(context.Background(), Request{Image: []byte("img")})
	aerr := Classify(err)
	assert.Equal(t, KindRemote, aerr.Kind)
}
