// Package ledgertest runs an in-process ledger that speaks the single-endpoint
// form protocol, for exercising the client end to end.
package ledgertest

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Response is the envelope the ledger writes for every operation.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Info    any    `json:"info,omitempty"`
}

// Form is the decoded request body.
type Form map[string]string

// HandlerFunc replaces the built-in behaviour of one operation.
type HandlerFunc func(Form) Response

// Server is a fiber app bound to a loopback listener.
type Server struct {
	Ledger *Ledger

	app *fiber.App
	ln  net.Listener

	mu           sync.Mutex
	calls        map[string]int
	requests     []Form
	overrides    map[string]HandlerFunc
	holds        map[string]chan struct{}
	singleEncode bool
}

// Start listens on 127.0.0.1 with a random port and serves until Close.
func Start() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		Ledger:    NewLedger(),
		ln:        ln,
		calls:     make(map[string]int),
		overrides: make(map[string]HandlerFunc),
		holds:     make(map[string]chan struct{}),
	}
	s.app = fiber.New(fiber.Config{DisableStartupMessage: true})
	s.app.Post("/api", s.handle)

	go func() {
		_ = s.app.Listener(ln)
	}()
	return s, nil
}

// URL is the base URL clients should be pointed at.
func (s *Server) URL() string {
	return "http://" + s.ln.Addr().String()
}

// Close releases held requests and stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	for op, ch := range s.holds {
		close(ch)
		delete(s.holds, op)
	}
	s.mu.Unlock()
	return s.app.Shutdown()
}

// Calls reports how many requests arrived for operation.
func (s *Server) Calls(operation string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[operation]
}

// TotalCalls reports how many requests arrived for any operation.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of every decoded request in arrival order.
func (s *Server) Requests() []Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Form, len(s.requests))
	copy(out, s.requests)
	return out
}

// Override answers operation with fn instead of the ledger.
func (s *Server) Override(operation string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[operation] = fn
}

// SingleEncoding makes the server write the envelope as a plain JSON document.
func (s *Server) SingleEncoding(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.singleEncode = on
}

// Hold parks every subsequent request for operation until the returned
// release func is called. Parked requests are already counted.
func (s *Server) Hold(operation string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[operation] = ch
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[operation] == ch {
				delete(s.holds, operation)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Server) handle(c *fiber.Ctx) error {
	form := Form{}
	c.Request().PostArgs().VisitAll(func(k, v []byte) {
		form[string(k)] = string(v)
	})
	op := form["operation"]

	s.mu.Lock()
	s.calls[op]++
	s.requests = append(s.requests, form)
	override := s.overrides[op]
	hold := s.holds[op]
	single := s.singleEncode
	s.mu.Unlock()

	if hold != nil {
		<-hold
	}

	var resp Response
	if override != nil {
		resp = override(form)
	} else {
		resp = s.dispatch(op, form)
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if !single {
		if payload, err = json.Marshal(string(payload)); err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(http.StatusOK).Send(payload)
}

func (s *Server) dispatch(op string, form Form) Response {
	switch op {
	case "add":
		acc, err := s.Ledger.Add(form["username"])
		if err != nil {
			return failure(err)
		}
		return Response{Code: 200, Message: "User added and a wallet is created", Info: walletInfo(acc)}
	case "list":
		users := make([]map[string]string, 0)
		for _, acc := range s.Ledger.Online() {
			users = append(users, map[string]string{"id": acc.ID, "name": acc.Name})
		}
		return Response{Code: 200, Message: "List generated successfully", Info: map[string]any{"users_list": users}}
	case "fetch":
		acc, err := s.Ledger.Fetch(form["wallet_id"])
		if err != nil {
			return failure(err)
		}
		return Response{Code: 200, Message: "Info fetched successfully", Info: walletInfo(acc)}
	case "login":
		acc, err := s.Ledger.Login(form["wallet_id"])
		if err != nil {
			return failure(err)
		}
		return Response{Code: 200, Message: "User logged in successfully", Info: walletInfo(acc)}
	case "logout":
		if err := s.Ledger.Logout(form["wallet_id"]); err != nil {
			return failure(err)
		}
		return Response{Code: 200, Message: "User logged out successfully"}
	case "transact":
		balance, err := s.Ledger.Transact(form["sender"], form["receiver"], form["amount"])
		if err != nil {
			return failure(err)
		}
		return Response{Code: 200, Message: "Transaction successful", Info: map[string]any{
			"balance":        json.Number(balance.String()),
			"transaction_id": newTransactionID(),
		}}
	default:
		return Response{Code: 500, Message: "Unknown operation"}
	}
}

func walletInfo(acc Account) map[string]any {
	return map[string]any{"id": acc.ID, "balance": json.Number(acc.Balance.String())}
}

func newTransactionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func failure(err error) Response {
	return Response{Code: 500, Message: err.Error()}
}
