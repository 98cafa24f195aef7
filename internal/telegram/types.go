package telegram

import "fmt"

// Command is a bot command name as typed by users.
type Command string

const (
	CmdStart         Command = "start"
	CmdHelp          Command = "help"
	CmdPlan          Command = "plan"
	CmdPay           Command = "pay"
	CmdRedeem        Command = "redeem"
	CmdGetLink       Command = "getlink"
	CmdBatch         Command = "batch"
	CmdDone          Command = "done"
	CmdCustomBatch   Command = "custombatch"
	CmdForceCh       Command = "forcech"
	CmdForceChDebug  Command = "forcechdebug"
	CmdAddPremium    Command = "addpremium"
	CmdRemovePremium Command = "removepremium"
	CmdGenCode       Command = "gencode"
	CmdSetCaption    Command = "setcaption"
	CmdRemoveCaption Command = "removecaption"
	CmdSetTime       Command = "settime"
	CmdSetPay        Command = "setpay"
	CmdStats         Command = "stats"
	CmdBroadcast     Command = "broadcast"
	CmdAddAdmin      Command = "addadmin"
	CmdRemoveAdmin   Command = "removeadmin"
	CmdCancel        Command = "cancel"
)

func (c Command) String() string {
	return string(c)
}

func (c Command) IsValid() bool {
	switch c {
	case CmdStart, CmdHelp, CmdPlan, CmdPay, CmdRedeem, CmdGetLink,
		CmdBatch, CmdDone, CmdCustomBatch, CmdForceCh, CmdForceChDebug,
		CmdAddPremium, CmdRemovePremium, CmdGenCode, CmdSetCaption,
		CmdRemoveCaption, CmdSetTime, CmdSetPay, CmdStats, CmdBroadcast,
		CmdAddAdmin, CmdRemoveAdmin, CmdCancel:
		return true
	}
	return false
}

func (c Command) IsAdminOnly() bool {
	switch c {
	case CmdGetLink, CmdBatch, CmdDone, CmdCustomBatch, CmdForceCh,
		CmdForceChDebug, CmdAddPremium, CmdRemovePremium, CmdGenCode,
		CmdSetCaption, CmdRemoveCaption, CmdSetTime, CmdSetPay,
		CmdStats, CmdBroadcast, CmdAddAdmin, CmdRemoveAdmin:
		return true
	}
	return false
}

// CallbackPrefix namespaces inline keyboard callback data.
type CallbackPrefix string

const (
	CallbackPayPlan       CallbackPrefix = "pay_plan_"
	CallbackPayApprove    CallbackPrefix = "pay_ok_"
	CallbackPayReject     CallbackPrefix = "pay_no_"
	CallbackRecheck       CallbackPrefix = "recheck_"
	CallbackChannelMode   CallbackPrefix = "fc_mode_"
	CallbackChannelRemove CallbackPrefix = "fc_del_"
)

func (c CallbackPrefix) String() string {
	return string(c)
}

func (c CallbackPrefix) WithID(id interface{}) string {
	return string(c) + fmt.Sprintf("%v", id)
}
