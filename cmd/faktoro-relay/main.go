package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faktoro.io/faktoro-relay/internal/api"
	"faktoro.io/faktoro-relay/internal/approval"
	"faktoro.io/faktoro-relay/internal/authz"
	"faktoro.io/faktoro-relay/internal/config"
	"faktoro.io/faktoro-relay/internal/ethereum"
	"faktoro.io/faktoro-relay/internal/relay"
	"faktoro.io/faktoro-relay/internal/scw"
	"faktoro.io/faktoro-relay/internal/starter"
	"faktoro.io/faktoro-relay/internal/wallet"
	"faktoro.io/faktoro-relay/pkg/errors"
	"faktoro.io/faktoro-relay/pkg/log"
)

func main() {
	log.Infof("Starting app")
	startApp()
}

func startApp() {
	defer func() {
		if i := recover(); i != nil {
			log.Fatal(errors.ErrorfAndReport("%v", i))
		}
	}()
	config.Read()
	log.SetLevel(config.Global.LogLevel)
	if err := errors.NewSentryReporter(config.Global.SentryDSN, time.Minute); err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dialer := ethereum.NewDialer(config.Global.RPCOverrides)
	owner, err := ethereum.NewKeyWallet(config.Global.OwnerKey.PrivateKeyHex, config.Global.OwnerKey.ChainID, dialer)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("owner wallet %v on chain %v", owner.Address().Hex(), owner.ChainID())
	owner.SubscribeChainChanges(func(chainID int) {
		log.Infof("owner wallet switched to chain %v", chainID)
	})

	registry := wallet.NewRegistry()
	session := relay.NewSession(relay.Meta{
		Name:        config.Global.Relay.ClientName,
		Description: config.Global.Relay.ClientDescription,
		URL:         config.Global.Relay.ClientURL,
	}, nil)
	registry.SubscribeActive(session)

	authzClient := authz.NewClient(config.Global.Authorization.BaseURL,
		time.Duration(config.Global.Authorization.TimeoutSeconds)*time.Second)
	twofa := authz.NewSession(authzClient, owner)
	if records, err := twofa.Hydrate(ctx); err != nil {
		log.Warnf("2fa hydration failed, continuing unregistered: %v", err)
	} else {
		registry.UpsertWallets(owner.Address().Hex(), records)
	}

	provisioner := scw.NewProvisioner(owner, dialer.Reader, config.Global.MaxDeployWorkers)
	flow := approval.NewFlow(authzClient, owner, session)
	inbox := approval.NewInbox(session.Requests())

	server := api.NewServer(owner, registry, provisioner, session, flow, inbox, twofa)
	starter.Start(ctx, inbox, server)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	cancel()
	starter.Stop(session)
}
