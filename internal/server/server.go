package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"atelier/internal/engine"
	"atelier/internal/repo"
	"atelier/internal/reporting"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"unknown reporting period"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Atelier API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Atelier API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerItems(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, reporting.ErrUnknownPeriod) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "transition"):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "must"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// actorOrDefault resolves the acting user from the X-Actor-Id header.
// Authentication proper lives in front of this service.
func actorOrDefault(header string) string {
	if strings.TrimSpace(header) == "" {
		return "admin"
	}
	return header
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ActorID string            `header:"X-Actor-Id"`
		Body    CreateItemRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		if input.Body.Title == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		opts := engine.WorkItemCreateOptions{
			Title:   input.Body.Title,
			ActorID: actorOrDefault(input.ActorID),
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.Price != nil {
			opts.Price = *input.Body.Price
		}
		if input.Body.AssignedTo != nil {
			opts.AssignedTo = *input.Body.AssignedTo
		}
		w, err := e.CreateWorkItem(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List work items",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body itemList `json:"body"`
	}, error) {
		items, err := e.ListWorkItems(ctx, repo.WorkItemFilters{
			Status:     input.Status,
			AssignedTo: input.AssignedTo,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body itemList `json:"body"`
		}{Body: itemList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{id}",
		Summary:     "Get work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		w, err := e.GetWorkItem(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPatch,
		Path:        "/items/{id}",
		Summary:     "Update work item fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string            `path:"id"`
		ActorID string            `header:"X-Actor-Id"`
		Body    UpdateItemRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		w, err := e.UpdateWorkItem(ctx, engine.WorkItemUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Price:       input.Body.Price,
			ActorID:     actorOrDefault(input.ActorID),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item-status",
		Method:      http.MethodPost,
		Path:        "/items/{id}/status",
		Summary:     "Change work item status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID      string              `path:"id"`
		Force   bool                `query:"force"`
		ActorID string              `header:"X-Actor-Id"`
		Body    UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		w, err := e.UpdateStatus(ctx, input.ID, input.Body.Status, actorOrDefault(input.ActorID), input.Force)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-item",
		Method:      http.MethodPost,
		Path:        "/items/{id}/assign",
		Summary:     "Assign work item to a freelancer",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string        `path:"id"`
		ActorID string        `header:"X-Actor-Id"`
		Body    AssignRequest `json:"body"`
	}) (*struct {
		Body ItemResponse `json:"body"`
	}, error) {
		w, err := e.AssignWorkItem(ctx, input.ID, input.Body.AssigneeID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemResponse `json:"body"`
		}{Body: itemResponse(w)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item-submission",
		Method:      http.MethodGet,
		Path:        "/items/{id}/submission",
		Summary:     "Reconstructed submission instant",
		Description: "The earliest logged instant the item entered submitted, from the event log. Null when the log never recorded that transition.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body SubmissionResponse `json:"body"`
	}, error) {
		at, skipped, err := e.SubmittedAt(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := SubmissionResponse{WorkItemID: input.ID, SkippedEvents: skipped}
		if at != nil {
			s := at.UTC().Format(time.RFC3339Nano)
			resp.SubmittedAt = &s
		}
		return &struct {
			Body SubmissionResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "report",
		Method:      http.MethodGet,
		Path:        "/report",
		Summary:     "Per-freelancer performance report",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Period       string `query:"period" default:"weekly"`
		FreelancerID string `query:"freelancer_id"`
		StartDate    string `query:"start_date"`
		EndDate      string `query:"end_date"`
	}) (*struct {
		Body reporting.Report `json:"body"`
	}, error) {
		kind, err := reporting.ParseKind(input.Period)
		if err != nil {
			return nil, handleError(err)
		}
		rep, err := e.Aggregator().Report(ctx, kind, input.FreelancerID, input.StartDate, input.EndDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body reporting.Report `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "timeseries",
		Method:      http.MethodGet,
		Path:        "/timeseries",
		Summary:     "Creation/submission rates, status distribution, leaderboard",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Period       string `query:"period" default:"weekly"`
		FreelancerID string `query:"freelancer_id"`
		StartDate    string `query:"start_date"`
		EndDate      string `query:"end_date"`
		Top          int    `query:"top" default:"5"`
	}) (*struct {
		Body reporting.Timeseries `json:"body"`
	}, error) {
		kind, err := reporting.ParseKind(input.Period)
		if err != nil {
			return nil, handleError(err)
		}
		ts, err := e.Aggregator().Timeseries(ctx, kind, input.FreelancerID, input.StartDate, input.EndDate, input.Top)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body reporting.Timeseries `json:"body"`
		}{Body: ts}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-item-events",
		Method:      http.MethodGet,
		Path:        "/items/{id}/events",
		Summary:     "Event history for one work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body eventList `json:"body"`
	}, error) {
		if _, err := e.GetWorkItem(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		evts, err := e.Repo.LatestEvents(ctx, 200, input.ID, "")
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: eventList{Events: evts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event feed",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50"`
		Cursor int64  `query:"cursor"`
		Item   string `query:"item"`
		Action string `query:"action"`
	}) (*struct {
		Body eventList `json:"body"`
	}, error) {
		evts, err := e.Repo.LatestEventsFrom(ctx, input.Limit, input.Cursor, input.Item, input.Action)
		if err != nil {
			return nil, handleError(err)
		}
		out := eventList{Events: evts}
		if len(evts) > 0 {
			out.Cursor = evts[len(evts)-1].ID
		}
		return &struct {
			Body eventList `json:"body"`
		}{Body: out}, nil
	})
}

func registerLedger(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-invoices",
		Method:      http.MethodGet,
		Path:        "/invoices",
		Summary:     "Invoice ledger lines",
	}, func(ctx context.Context, input *struct {
		FreelancerID string `query:"freelancer_id"`
		Limit        int    `query:"limit" default:"100"`
	}) (*struct {
		Body invoiceList `json:"body"`
	}, error) {
		items, err := e.Repo.ListInvoiceItems(ctx, input.FreelancerID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body invoiceList `json:"body"`
		}{Body: invoiceList{Invoices: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "Queued notifications",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
		Limit  int    `query:"limit" default:"100"`
	}) (*struct {
		Body notificationList `json:"body"`
	}, error) {
		items, err := e.Repo.ListNotifications(ctx, input.UserID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body notificationList `json:"body"`
		}{Body: notificationList{Notifications: items}}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Atelier API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}
