package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"faktoro.io/faktoro-relay/internal/approval"
	"faktoro.io/faktoro-relay/internal/authz"
	"faktoro.io/faktoro-relay/internal/chains"
	"faktoro.io/faktoro-relay/internal/config"
	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/internal/relay"
	"faktoro.io/faktoro-relay/internal/scw"
	"faktoro.io/faktoro-relay/internal/wallet"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

// Server is the local HTTP surface a frontend drives: wallet management,
// WalletConnect pairing, 2FA enrollment and pending-request approval.
type Server struct {
	listen      string
	owner       *ethereum.KeyWallet
	registry    *wallet.Registry
	provisioner *scw.Provisioner
	session     *relay.Session
	flow        *approval.Flow
	inbox       *approval.Inbox
	twofa       *authz.Session
}

func NewServer(
	owner *ethereum.KeyWallet,
	registry *wallet.Registry,
	provisioner *scw.Provisioner,
	session *relay.Session,
	flow *approval.Flow,
	inbox *approval.Inbox,
	twofa *authz.Session,
) *Server {
	return &Server{
		owner:       owner,
		registry:    registry,
		provisioner: provisioner,
		session:     session,
		flow:        flow,
		inbox:       inbox,
		twofa:       twofa,
	}
}

// Apply picks the listen address up from configuration.
func (s *Server) Apply(cfg *config.Configuration) {
	s.listen = cfg.ListenAddress
}

// Start serves the API in the background.
func (s *Server) Start(ctx context.Context) {
	go s.run()
}

func (s *Server) run() {
	router := gin.Default()
	router.Use(gin.Recovery())

	router.GET("/wallets", s.listWallets)
	router.POST("/wallets", s.createWallet)
	router.POST("/wallets/active", s.setActiveWallet)

	router.POST("/walletconnect/connect", s.connect)
	router.POST("/walletconnect/disconnect", s.disconnect)
	router.GET("/walletconnect/status", s.status)

	router.GET("/requests/pending", s.pendingRequest)
	router.POST("/requests/:id/approve", s.approveRequest)
	router.POST("/requests/:id/reject", s.rejectRequest)

	router.GET("/2fa/status", s.twofaStatus)
	router.POST("/2fa/register", s.twofaRegister)
	router.GET("/2fa/qr", s.twofaQR)
	router.POST("/2fa/verify", s.twofaVerify)

	if err := router.Run(s.listen); err != nil {
		log.Fatal(err)
	}
}

type walletView struct {
	Owner      string `json:"owner"`
	OwnerShort string `json:"ownerShort"`
	ChainID    int    `json:"chainId"`
	Network    string `json:"network"`
	Address    string `json:"walletAddress"`
	AddrShort  string `json:"walletAddressShort"`
}

func viewOf(record wallet.Record) walletView {
	return walletView{
		Owner:      record.OwnerAddress,
		OwnerShort: chains.ShortenAddress(record.OwnerAddress, 8),
		ChainID:    record.ChainID,
		Network:    chains.Resolve(record.ChainID).Name,
		Address:    record.SCWAddress,
		AddrShort:  chains.ShortenAddress(record.SCWAddress, 8),
	}
}

func (s *Server) listWallets(ctx *gin.Context) {
	records := s.registry.Wallets()
	views := make([]walletView, 0, len(records))
	for _, record := range records {
		views = append(views, viewOf(record))
	}
	resp := map[string]interface{}{
		"wallets": views,
	}
	if active, ok := s.registry.Active(); ok {
		resp["active"] = viewOf(active)
	}
	ctx.JSONP(http.StatusOK, resp)
}

type createWalletRequest struct {
	ChainID interface{} `json:"chainId"`
}

func (s *Server) createWallet(ctx *gin.Context) {
	var req createWalletRequest
	if err := ctx.BindJSON(&req); err != nil {
		return
	}
	chainID, err := chains.NormalizeChainID(req.ChainID)
	if err != nil {
		ctx.JSONP(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	owner := s.owner.Address()
	address, err := s.provisioner.Deploy(ctx.Request.Context(), owner, chainID)
	if err != nil {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	record := wallet.Record{
		OwnerAddress: owner.Hex(),
		ChainID:      chainID,
		SCWAddress:   address.Hex(),
	}
	records := append(s.registry.WalletsOf(owner.Hex()), record)
	s.registry.UpsertWallets(owner.Hex(), records)
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"wallet": viewOf(record),
	})
}

func (s *Server) setActiveWallet(ctx *gin.Context) {
	var record wallet.Record
	if err := ctx.BindJSON(&record); err != nil {
		return
	}
	if err := s.registry.SetActive(record); err != nil {
		ctx.JSONP(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"active": viewOf(record),
	})
}

type connectRequest struct {
	URI string `json:"uri"`
}

func (s *Server) connect(ctx *gin.Context) {
	var req connectRequest
	if err := ctx.BindJSON(&req); err != nil {
		return
	}
	if err := s.session.Connect(ctx.Request.Context(), req.URI); err != nil {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"state": s.session.State().String(),
	})
}

func (s *Server) disconnect(ctx *gin.Context) {
	s.session.Disconnect()
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"state": s.session.State().String(),
	})
}

func (s *Server) status(ctx *gin.Context) {
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"state": s.session.State().String(),
	})
}

func (s *Server) pendingRequest(ctx *gin.Context) {
	req, ok := s.inbox.Current()
	if !ok {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"pending": nil,
		})
		return
	}
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"pending": map[string]interface{}{
			"requestId": req.RequestID,
			"from":      req.FromOwner,
			"wallet":    req.ToSCW,
			"to":        req.TargetAddress,
			"toShort":   chains.ShortenAddress(req.TargetAddress, 8),
			"value":     req.Value.String(),
		},
	})
}

type approveRequestBody struct {
	Code string `json:"code"`
}

func (s *Server) approveRequest(ctx *gin.Context) {
	requestID, ok := parseRequestID(ctx)
	if !ok {
		return
	}
	var body approveRequestBody
	if err := ctx.BindJSON(&body); err != nil {
		return
	}
	req, err := s.inbox.Take(requestID)
	if err != nil {
		ctx.JSONP(http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	txHash, err := s.flow.Submit(ctx.Request.Context(), req, body.Code)
	if err != nil {
		status := http.StatusOK
		if errors.Is(err, errors.ErrInvalidCodeLength) {
			status = http.StatusBadRequest
		} else {
			// Anything past the length gate resolved the request.
			s.inbox.Settle(requestID)
		}
		ctx.JSONP(status, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.inbox.Settle(requestID)
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"txHash": txHash,
	})
}

func (s *Server) rejectRequest(ctx *gin.Context) {
	requestID, ok := parseRequestID(ctx)
	if !ok {
		return
	}
	req, err := s.inbox.Take(requestID)
	if err != nil {
		ctx.JSONP(http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := s.flow.Reject(req, "rejected by user"); err != nil {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.inbox.Settle(requestID)
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"rejected": requestID,
	})
}

func (s *Server) twofaStatus(ctx *gin.Context) {
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"address": s.owner.Address().Hex(),
		"status":  s.twofa.Status().String(),
	})
}

func (s *Server) twofaRegister(ctx *gin.Context) {
	uri, err := s.twofa.BeginRegistration(ctx.Request.Context())
	if err != nil {
		ctx.JSONP(http.StatusOK, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"qrSecretUri": uri,
	})
}

func (s *Server) twofaQR(ctx *gin.Context) {
	png, err := s.twofa.QRPNG(256)
	if err != nil {
		ctx.JSONP(http.StatusNotFound, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	ctx.Data(http.StatusOK, "image/png", png)
}

type verifyBody struct {
	Code string `json:"code"`
}

func (s *Server) twofaVerify(ctx *gin.Context) {
	var body verifyBody
	if err := ctx.BindJSON(&body); err != nil {
		return
	}
	if err := s.twofa.SubmitSetupCode(ctx.Request.Context(), body.Code); err != nil {
		status := http.StatusOK
		if errors.Is(err, errors.ErrInvalidCodeLength) {
			status = http.StatusBadRequest
		}
		ctx.JSONP(status, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	ctx.JSONP(http.StatusOK, map[string]interface{}{
		"status": s.twofa.Status().String(),
	})
}

func parseRequestID(ctx *gin.Context) (int64, bool) {
	requestID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		ctx.JSONP(http.StatusBadRequest, map[string]interface{}{
			"error": "malformed request id",
		})
		return 0, false
	}
	return requestID, true
}
