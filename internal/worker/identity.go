package worker

import (
	"fmt"
	"math/rand/v2"
)

// DefaultIdentityPrefix — префикс идентификатора воркера по умолчанию.
const DefaultIdentityPrefix = "worker-go"

// Identity — идентификатор воркера.
//
// Создаётся один раз при старте процесса, передаётся брокеру как имя
// соединения и добавляется в каждое исходящее сообщение (worker_id).
type Identity string

// NewIdentity возвращает идентификатор вида "<prefix>-NNNN", NNNN в [1000, 10000].
func NewIdentity(prefix string) Identity {
	if prefix == "" {
		prefix = DefaultIdentityPrefix
	}
	return Identity(fmt.Sprintf("%s-%d", prefix, 1000+rand.IntN(9001)))
}

func (id Identity) String() string {
	return string(id)
}
