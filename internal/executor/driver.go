package executor

import "context"

// Driver drives a single sandboxed browser session. No headless-browser
// automation library appears anywhere in this codebase's retrieved
// dependency lineage, so the browser surface is kept behind this narrow
// interface rather than importing one unilaterally; production wiring
// supplies a concrete Driver (e.g. a CDP client) at construction.
type Driver interface {
	// NewPage opens a fresh page with the standard viewport and returns a
	// session handle scoped to one submission attempt.
	NewPage(ctx context.Context) (Page, error)
}

// Page is one browser tab/session, used for exactly one plan execution.
type Page interface {
	Goto(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Select(ctx context.Context, selector, value string) error
	WaitForLoad(ctx context.Context) error
	URL() string
	Content(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}
