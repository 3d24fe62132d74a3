package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nhle/brancard/internal/model"
)

// DefaultPageSize is used by the paged list endpoints when none is given.
const DefaultPageSize = 50

// PageQuery selects a page of a list endpoint.
type PageQuery struct {
	Page   int
	Size   int
	Search string
}

func (q PageQuery) values() url.Values {
	page, size := q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	v := url.Values{}
	v.Set("pageNumber", strconv.Itoa(page))
	v.Set("pageSize", strconv.Itoa(size))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}

// ticketEnvelope wraps ticket responses.
type ticketEnvelope struct {
	Data    *model.Ticket `json:"data"`
	Errors  []string      `json:"errors"`
	TraceID string        `json:"traceId"`
}

type workRouteAssignment struct {
	UserID int64 `json:"userId"`
}

// Porter returns the porter profile of user id with its assigned route and
// tickets.
func (c *Client) Porter(ctx context.Context, id int64) (model.Porter, error) {
	var p model.Porter
	if err := c.Get(ctx, "/api/Porters/"+strconv.FormatInt(id, 10), nil, &p); err != nil {
		return model.Porter{}, fmt.Errorf("fetching porter %d: %w", id, err)
	}
	return p, nil
}

// Ticket returns the detail of ticket id.
func (c *Client) Ticket(ctx context.Context, id int64) (model.Ticket, error) {
	var env ticketEnvelope
	if err := c.Get(ctx, "/api/ticket/"+strconv.FormatInt(id, 10), nil, &env); err != nil {
		return model.Ticket{}, fmt.Errorf("fetching ticket %d: %w", id, err)
	}
	if env.Data == nil {
		return model.Ticket{}, fmt.Errorf("fetching ticket %d: empty response", id)
	}
	return *env.Data, nil
}

// ChangeTicketStatus applies a porter transition to ticket id. req is sent
// as the body of refusals and abandonments and may be nil otherwise.
func (c *Client) ChangeTicketStatus(
	ctx context.Context,
	id int64,
	action model.TicketAction,
	req *model.StatusChangeRequest,
) error {
	path := "/api/ticket/" + strconv.FormatInt(id, 10) + "/" + string(action)
	var body interface{} = struct{}{}
	if req != nil {
		body = req
	}
	if err := c.Patch(ctx, path, body, nil); err != nil {
		return fmt.Errorf("%s ticket %d: %w", action, id, err)
	}
	return nil
}

// WorkRoutes returns a page of work routes.
func (c *Client) WorkRoutes(ctx context.Context, q PageQuery) (model.Page[model.WorkRoute], error) {
	var page model.Page[model.WorkRoute]
	if err := c.Get(ctx, "/api/WorkRoute", q.values(), &page); err != nil {
		return model.Page[model.WorkRoute]{}, fmt.Errorf("fetching work routes: %w", err)
	}
	return page, nil
}

func workRoutePath(id int64, op string) string {
	return "/api/WorkRoute/" + strconv.FormatInt(id, 10) + "/" + op
}

// AssignWorkRoute assigns route id to user.
func (c *Client) AssignWorkRoute(ctx context.Context, id, user int64) error {
	if err := c.Post(ctx, workRoutePath(id, "assign"), workRouteAssignment{UserID: user}, nil); err != nil {
		return fmt.Errorf("assigning work route %d: %w", id, err)
	}
	return nil
}

// ChangeWorkRoute moves user from its current route to route id.
func (c *Client) ChangeWorkRoute(ctx context.Context, id, user int64) error {
	if err := c.Put(ctx, workRoutePath(id, "assign"), workRouteAssignment{UserID: user}, nil); err != nil {
		return fmt.Errorf("changing work route to %d: %w", id, err)
	}
	return nil
}

// LeaveWorkRoute unassigns user from route id.
func (c *Client) LeaveWorkRoute(ctx context.Context, id, user int64) error {
	if err := c.Post(ctx, workRoutePath(id, "leave"), workRouteAssignment{UserID: user}, nil); err != nil {
		return fmt.Errorf("leaving work route %d: %w", id, err)
	}
	return nil
}

// EndWorkRoute ends user's shift on route id.
func (c *Client) EndWorkRoute(ctx context.Context, id, user int64) error {
	if err := c.Post(ctx, workRoutePath(id, "end"), workRouteAssignment{UserID: user}, nil); err != nil {
		return fmt.Errorf("ending work route %d: %w", id, err)
	}
	return nil
}

// Members returns a page of the user directory.
func (c *Client) Members(ctx context.Context, q PageQuery) (model.Page[model.Member], error) {
	var page model.Page[model.Member]
	if err := c.Get(ctx, "/api/members", q.values(), &page); err != nil {
		return model.Page[model.Member]{}, fmt.Errorf("fetching members: %w", err)
	}
	return page, nil
}
