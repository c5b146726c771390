package patient

import "github.com/mango/reabilita/internal/platform/store"

// Collection is the store path every patient lives under.
const Collection = "patients"

// Patient is a registered patient. ID is the store-generated push key.
type Patient struct {
	ID    string `json:"id"`
	Nome  string `json:"nome"`
	Idade int    `json:"idade"`
	Sexo  string `json:"sexo"`
}

// record is the stored shape; the id is the node key, not a field.
type record struct {
	Nome  string `json:"nome"`
	Idade int    `json:"idade"`
	Sexo  string `json:"sexo"`
}

// Path returns the store path of one patient's subtree.
func Path(id string) string {
	return store.Join(Collection, id)
}
