package authorizer

import (
	"math/big"

	"eragonauth/crypto"
	"eragonauth/message"
)

// AptosCoin is the native coin type claimed by default.
const AptosCoin = "0x1::aptos_coin::AptosCoin"

func (a *Authorizer) timestamp() message.Value {
	return message.Int64(a.now().Unix())
}

// CheckIn authorises a daily check-in for player.
func (a *Authorizer) CheckIn(player crypto.AccountAddress) (*SignedAction, error) {
	return a.Authorize(message.CheckIn, message.Fields{
		"addr": message.Bytes(player[:]),
		"ts":   a.timestamp(),
	})
}

// Claim authorises player to withdraw amount of coinType.
func (a *Authorizer) Claim(player crypto.AccountAddress, coinType string, amount uint64) (*SignedAction, error) {
	return a.Authorize(message.Claim, message.Fields{
		"addr":      message.Bytes(player[:]),
		"coin_type": message.String(coinType),
		"amount":    message.Uint64(amount),
		"ts":        a.timestamp(),
	})
}

// Roll authorises one lucky-wheel spin in the given season pool. start is the
// beginning of the pool window the roll counts against.
func (a *Authorizer) Roll(player crypto.AccountAddress, seasonID, poolID, start uint64) (*SignedAction, error) {
	return a.Authorize(message.Roll, message.Fields{
		"addr":      message.Bytes(player[:]),
		"season_id": message.Uint64(seasonID),
		"pool_id":   message.Uint64(poolID),
		"start":     message.Uint64(start),
		"ts":        a.timestamp(),
	})
}

// RollProfileBy authorises an avatar roll using an imported asset type.
func (a *Authorizer) RollProfileBy(player crypto.AccountAddress, assetType *big.Int) (*SignedAction, error) {
	return a.Authorize(message.RollProfileBy, message.Fields{
		"addr":       message.Bytes(player[:]),
		"asset_type": message.BigUint(assetType),
		"ts":         a.timestamp(),
	})
}

// ImportAsset authorises owner to import the token object at assetAddr. The
// entry function only accepts imports, so is_import is always true.
func (a *Authorizer) ImportAsset(owner, assetAddr crypto.AccountAddress) (*SignedAction, error) {
	return a.Authorize(message.ImportSigTokenV2, message.Fields{
		"owner":      message.Bytes(owner[:]),
		"asset_addr": message.Bytes(assetAddr[:]),
		"is_import":  message.Bool(true),
		"ts":         a.timestamp(),
	})
}
