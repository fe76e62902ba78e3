package allreduce

import "github.com/Kitware/VTK-sub105/comm"

// reduceVectors combines vectors in order, as
// vecs[0] op (vecs[1] op (... op vecs[n-1])).
func reduceVectors(typ comm.DataType, op comm.Operation, vecs ...[]byte) ([]byte, error) {
	res := append([]byte{}, vecs[len(vecs)-1]...)
	for i := len(vecs) - 2; i >= 0; i-- {
		if err := op.Apply(vecs[i], res, typ); err != nil {
			return nil, err
		}
	}
	return res, nil
}
