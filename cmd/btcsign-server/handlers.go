package main

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/shiftsig/btcsign/internal/btcsign"
	"github.com/shiftsig/btcsign/internal/config"
)

// resultResponse is the envelope every sign endpoint replies with: result
// is one of OK, INVALID_INPUT, USER_ABORT, UNKNOWN, plus whatever payload
// a given operation returns on success.
type resultResponse struct {
	Result  config.Result `json:"result"`
	Error   string        `json:"error,omitempty"`
	Payload any           `json:"payload,omitempty"`
}

func statusForResult(res config.Result) int {
	switch res {
	case config.ResultOK:
		return http.StatusOK
	case config.ResultUserAbort:
		return http.StatusForbidden
	case config.ResultInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, err error, payload any) {
	res := config.ClassifyResult(err)
	resp := resultResponse{Result: res, Payload: payload}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusForResult(res), resp)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, resultResponse{Result: config.ResultInvalidInput, Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func initHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto signInitRequestDTO
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		req, err := dto.toRequest()
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		err = c.Init(r.Context(), req)
		writeResult(w, err, nil)
	}
}

func prevtxInitHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto prevtxInitDTO
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		input, err := dto.Input.toRequest()
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		err = c.PrevtxInit(input, dto.Init.toRequest())
		writeResult(w, err, nil)
	}
}

func prevtxInputHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto prevtxInputDTO
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		req, err := dto.toRequest()
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		err = c.PrevtxInput(req, dto.Index)
		writeResult(w, err, nil)
	}
}

func prevtxOutputHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto prevtxOutputDTO
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		req, err := dto.toRequest()
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		err = c.PrevtxOutput(req, dto.Index)
		writeResult(w, err, nil)
	}
}

func inputPass1Handler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto struct {
			Last bool `json:"last"`
		}
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		err := c.InputPass1(dto.Last)
		writeResult(w, err, nil)
	}
}

func outputHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto signOutputRequestDTO
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		req, err := dto.toRequest()
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		err = c.Output(req, dto.Last)
		writeResult(w, err, nil)
	}
}

func inputPass2Handler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto struct {
			Input signInputRequestDTO `json:"input"`
			Last  bool                `json:"last"`
		}
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		req, err := dto.Input.toRequest()
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		commitment, signature, err := c.InputPass2(req, dto.Last)

		payload := struct {
			Commitment string `json:"commitment,omitempty"`
			Signature  string `json:"signature,omitempty"`
		}{}
		if commitment != nil {
			payload.Commitment = hex.EncodeToString(commitment[:])
		}
		if signature != nil {
			payload.Signature = hex.EncodeToString(signature[:])
		}
		writeResult(w, err, payload)
	}
}

func antikleptoHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dto struct {
			HostNonce string `json:"host_nonce"`
		}
		if err := decodeBody(r, &dto); err != nil {
			writeDecodeError(w, err)
			return
		}
		hostNonce, err := decodeFixed32(dto.HostNonce)
		if err != nil {
			writeDecodeError(w, err)
			return
		}
		sig, err := c.Antiklepto(btcsign.AntiKleptoRequest{HostNonce: hostNonce})

		payload := struct {
			Signature string `json:"signature,omitempty"`
		}{}
		if err == nil {
			payload.Signature = hex.EncodeToString(sig[:])
		}
		writeResult(w, err, payload)
	}
}

func resetHandler(c *btcsign.Controller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.Reset()
		writeResult(w, nil, nil)
	}
}
