package response

import "subgate/internal/transport/http/flash"

type Resp struct {
	Code  int            `json:"code"`
	Msg   string         `json:"msg"`
	Data  interface{}    `json:"data"`
	Flash *flash.Message `json:"flash,omitempty"`
}

// New 保证 data 不为 null
func New(code int, msg string, data interface{}) Resp {
	if data == nil {
		data = struct{}{}
	}
	return Resp{Code: code, Msg: msg, Data: data}
}

func OK(data interface{}) Resp {
	return New(CodeOK, CodeMsgMap[CodeOK], data)
}

func Error(code int, customMsg string) Resp {
	msg := CodeMsgMap[code]
	if customMsg != "" {
		msg = customMsg
	}
	return New(code, msg, struct{}{})
}

func (r Resp) WithFlash(m *flash.Message) Resp {
	r.Flash = m
	return r
}
