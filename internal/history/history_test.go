package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleExport = `{
  "name": "friends",
  "messages": [
    {"id": 1, "type": "message", "date": "2020-01-01T10:00:00", "from": "Alice", "text": "hello there"},
    {"id": 2, "type": "message", "date": "2020-01-01T10:01:00", "from": "Bob",
     "text": ["see ", {"type": "link", "text": "https://example.com"}, " now"]},
    {"id": 3, "type": "service", "date": "2020-01-01T10:02:00", "text": ""},
    {"id": 4, "type": "message", "date": "2020-01-01T10:03:00", "from": "Alice", "text": null}
  ]
}`

func TestExport_Decode(t *testing.T) {
	var exp Export
	require.NoError(t, json.Unmarshal([]byte(sampleExport), &exp))
	require.Len(t, exp.Messages, 4)

	m := exp.Messages[0]
	require.Equal(t, int64(1), m.ID)
	require.NotNil(t, m.From)
	require.Equal(t, "Alice", *m.From)
	text, ok := m.Text.Plain()
	require.True(t, ok)
	require.Equal(t, "hello there", text)

	_, ok = exp.Messages[1].Text.Plain()
	require.False(t, ok)
	require.Equal(t, []Segment{
		{Text: "see "},
		{Type: "link", Text: "https://example.com"},
		{Text: " now"},
	}, exp.Messages[1].Text.Segments())

	require.Nil(t, exp.Messages[2].From)
	text, ok = exp.Messages[2].Text.Plain()
	require.True(t, ok)
	require.Empty(t, text)

	_, ok = exp.Messages[3].Text.Plain()
	require.False(t, ok)
}

func TestText_RejectsObjects(t *testing.T) {
	var tx Text
	require.Error(t, json.Unmarshal([]byte(`{"text": "x"}`), &tx))
	require.Error(t, json.Unmarshal([]byte(`[1]`), &tx))
}

func TestText_MarshalRoundTrip(t *testing.T) {
	in := Message{ID: 9, Type: "message", Text: RichText(Segment{Text: "a"}, Segment{Type: "bold", Text: "b"})}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":9,"type":"message","date":"","text":["a",{"type":"bold","text":"b"}]}`, string(b))

	var out Message
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, in.Text.Segments(), out.Text.Segments())
}

func TestFetcher_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/start":
			http.Redirect(w, r, "/export.json", http.StatusFound)
		case "/export.json":
			gotUA = r.Header.Get("User-Agent")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(sampleExport))
		case "/broken.json":
			_, _ = w.Write([]byte(`{"messages": [`))
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(5 * time.Second)
	ctx := context.Background()

	exp, err := f.Fetch(ctx, srv.URL+"/start")
	require.NoError(t, err)
	require.Len(t, exp.Messages, 4)
	require.Equal(t, "curl/7.64.1", gotUA)

	_, err = f.Fetch(ctx, srv.URL+"/broken.json")
	require.ErrorContains(t, err, "parse json")

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	require.ErrorContains(t, err, "status=404")

	_, err = f.Fetch(ctx, srv.URL+"/loop")
	require.ErrorContains(t, err, "too many redirects")
}
