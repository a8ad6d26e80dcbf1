package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletsync/internal/gateway"
	"github.com/congo-pay/walletsync/internal/session"
	"github.com/congo-pay/walletsync/internal/transfer"
	"github.com/congo-pay/walletsync/internal/view"
)

// Client is what the control API drives; *Engine implements it.
type Client interface {
	Login(ctx context.Context, walletID string) error
	Signup(ctx context.Context, username string) error
	Logout(ctx context.Context) error
	Transfer(ctx context.Context, receiverID string, amount *string) (transfer.Result, error)
	TransferState() transfer.State
	Session() session.Info
	Snapshot() view.Snapshot
}

// Handler exposes the client over the control API.
type Handler struct {
	client Client
}

// NewHandler constructs a control handler.
func NewHandler(client Client) *Handler {
	return &Handler{client: client}
}

type loginRequest struct {
	WalletID string `json:"wallet_id"`
}

type signupRequest struct {
	Username string `json:"username"`
}

type transferRequest struct {
	Receiver string  `json:"receiver"`
	Amount   *string `json:"amount"`
}

// Login authenticates an existing wallet.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.client.Login(c.UserContext(), strings.TrimSpace(req.WalletID)); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(h.client.Session())
}

// Signup creates and authenticates a wallet.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.client.Signup(c.UserContext(), strings.TrimSpace(req.Username)); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(h.client.Session())
}

// Logout ends the active session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.client.Logout(c.UserContext()); err != nil {
		return mapError(err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// Session reports the session and whether a transfer is pending.
func (h *Handler) Session(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"session":  h.client.Session(),
		"transfer": h.client.TransferState(),
	})
}

// View returns what the dashboard currently shows.
func (h *Handler) View(c *fiber.Ctx) error {
	return c.JSON(h.client.Snapshot())
}

// Transfer sends funds from the active wallet. Without an amount the
// operator is prompted.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Receiver) == "" {
		return fiber.NewError(http.StatusBadRequest, "receiver is required")
	}
	res, err := h.client.Transfer(c.UserContext(), strings.TrimSpace(req.Receiver), req.Amount)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(res)
}

func mapError(err error) error {
	var appErr *gateway.ApplicationError
	switch {
	case errors.Is(err, session.ErrBlankInput), errors.Is(err, transfer.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNoSession):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, session.ErrSessionBusy), errors.Is(err, transfer.ErrTransferInFlight):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &appErr) && appErr.Message != "":
		return fiber.NewError(http.StatusUnprocessableEntity, appErr.Message)
	case errors.As(err, &appErr):
		return fiber.NewError(http.StatusUnprocessableEntity, appErr.Error())
	case errors.Is(err, gateway.ErrTransport):
		return fiber.NewError(http.StatusBadGateway, "ledger unreachable")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
