package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ayusman/posebake/internal/animation"
	"github.com/ayusman/posebake/internal/app"
	"github.com/ayusman/posebake/internal/capture"
	"github.com/ayusman/posebake/internal/detector"
	"github.com/ayusman/posebake/internal/store"
)

type eventLog struct {
	mu     sync.Mutex
	events []app.Event
}

func (l *eventLog) publish(e app.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func tposeFactory(s *store.Store, openErr error) ConverterFactory {
	return func(observer app.Observer) *app.Converter {
		det := detector.NewMockDetector()
		det.SetDetection(detector.TPoseDetection())
		return app.New(app.Config{
			Options:  app.DefaultOptions(),
			Detector: det,
			NewSource: func() capture.Source {
				src := capture.NewMockSource(20, 3)
				if openErr != nil {
					src.SetOpenError(openErr)
				}
				return src
			},
			Store:    s,
			Observer: observer,
		})
	}
}

func postConvert(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/convert", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getJob(t *testing.T, h http.Handler, id string) Job {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/jobs/%s: expected status %d, got %d", id, http.StatusOK, rec.Code)
	}
	var job Job
	if err := json.NewDecoder(rec.Body).Decode(&job); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	return job
}

func TestConvertHandler_CompletesJob(t *testing.T) {
	s := newTestStore(t)
	events := &eventLog{}
	handler := NewConvertHandler(tposeFactory(s, nil), events.publish, nil)
	defer handler.Close()

	output := filepath.Join(t.TempDir(), "out.animation.json")
	body, _ := json.Marshal(convertRequest{Videos: []string{"/videos/walk.mp4"}, Output: output})
	rec := postConvert(t, handler, string(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d: %s", http.StatusAccepted, rec.Code, rec.Body.String())
	}

	var resp convertResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected a job ID")
	}

	handler.Wait()

	job := getJob(t, handler, resp.JobID)
	if job.Status != JobCompleted {
		t.Fatalf("expected status %s, got %s (%s)", JobCompleted, job.Status, job.Error)
	}
	if len(job.Clips) != 1 || job.Clips[0].Clip != "walk" || job.Clips[0].Frames != 3 {
		t.Errorf("unexpected clips %+v", job.Clips)
	}
	if job.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}

	doc, err := animation.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if _, ok := doc.Clip("walk"); !ok {
		t.Error("expected the output document to contain walk")
	}

	stored, err := s.Clips().List()
	if err != nil {
		t.Fatalf("list clips: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("expected 1 stored clip, got %d", len(stored))
	}

	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.events) == 0 {
		t.Fatal("expected progress events")
	}
	for _, e := range events.events {
		if e.Job != resp.JobID {
			t.Errorf("expected event tagged with job %s, got %q", resp.JobID, e.Job)
		}
	}
}

func TestConvertHandler_FailedJob(t *testing.T) {
	handler := NewConvertHandler(tposeFactory(nil, errors.New("unsupported codec")), nil, nil)
	defer handler.Close()

	rec := postConvert(t, handler, `{"videos": ["broken.mp4"]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, rec.Code)
	}
	var resp convertResponse
	json.NewDecoder(rec.Body).Decode(&resp)

	handler.Wait()

	job := getJob(t, handler, resp.JobID)
	if job.Status != JobFailed {
		t.Errorf("expected status %s, got %s", JobFailed, job.Status)
	}
	if len(job.Clips) != 1 || job.Clips[0].Error == "" {
		t.Errorf("expected the failing video to be reported, got %+v", job.Clips)
	}
}

func TestConvertHandler_BadRequests(t *testing.T) {
	handler := NewConvertHandler(tposeFactory(nil, nil), nil, nil)
	defer handler.Close()

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"videos":`},
		{name: "no videos", body: `{"videos": []}`},
		{name: "blank videos", body: `{"videos": ["  "]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postConvert(t, handler, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
			}
		})
	}

	t.Run("unknown job", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("convert requires POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/convert", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestConvertHandler_ListJobs(t *testing.T) {
	handler := NewConvertHandler(tposeFactory(nil, nil), nil, nil)
	defer handler.Close()

	postConvert(t, handler, `{"videos": ["a.mp4"]}`)
	postConvert(t, handler, `{"videos": ["b.mp4"]}`)
	handler.Wait()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs", nil))
	var resp listJobsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(resp.Jobs))
	}
}

func TestConvertHandler_CloseDuringStart(t *testing.T) {
	handler := NewConvertHandler(tposeFactory(nil, nil), nil, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []string
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := postConvert(t, handler, `{"videos": ["a.mp4"]}`)
			switch rec.Code {
			case http.StatusAccepted:
				var resp convertResponse
				json.NewDecoder(rec.Body).Decode(&resp)
				mu.Lock()
				accepted = append(accepted, resp.JobID)
				mu.Unlock()
			case http.StatusServiceUnavailable:
			default:
				t.Errorf("unexpected status %d", rec.Code)
			}
		}()
	}

	if err := handler.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()

	// Every job accepted before Close has stopped running by the time it returns.
	mu.Lock()
	defer mu.Unlock()
	for _, id := range accepted {
		if job := getJob(t, handler, id); job.Status == JobRunning {
			t.Errorf("job %s still running after Close", id)
		}
	}

	rec := postConvert(t, handler, `{"videos": ["late.mp4"]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d after Close, got %d", http.StatusServiceUnavailable, rec.Code)
	}
}
