package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"medguard/internal/merkle"
)

func sampleRecord() Record {
	return Record{
		Demographics: map[string]any{"age": 45, "gender": "F"},
		MedicalData:  map[string]any{"diagnosis": "Hypertension"},
		Notes:        "stable, follow up in 3 months",
		HospitalInfo: "General Hospital",
		PatientID:    "0xEDB64f85F1fC9357EcA100C2970f7F84a5faAD4A",
		DoctorID:     "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Date:         "2025-11-02",
		Category:     "cardiology",
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first, err := Build(sampleRecord())
	require.NoError(t, err)
	second, err := Build(sampleRecord())
	require.NoError(t, err)
	require.Equal(t, first.Root(), second.Root())
}

func TestMapKeyOrderDoesNotAffectRoot(t *testing.T) {
	rec := sampleRecord()
	rec.Demographics = map[string]any{"gender": "F", "age": 45}
	reordered, err := Build(rec)
	require.NoError(t, err)

	baseline, err := Build(sampleRecord())
	require.NoError(t, err)
	require.Equal(t, baseline.Root(), reordered.Root())
}

func TestChangedFieldChangesRoot(t *testing.T) {
	baseline, err := Build(sampleRecord())
	require.NoError(t, err)

	rec := sampleRecord()
	rec.MedicalData = map[string]any{"diagnosis": "Diabetes"}
	altered, err := Build(rec)
	require.NoError(t, err)
	require.NotEqual(t, baseline.Root(), altered.Root())
}

func TestProofForEveryField(t *testing.T) {
	idr, err := Build(sampleRecord())
	require.NoError(t, err)

	for _, name := range FieldOrder {
		value, err := FieldValue(sampleRecord(), name)
		require.NoError(t, err)
		leaf, err := LeafFor(name, value)
		require.NoError(t, err)

		proof, err := idr.ProofFor(name)
		require.NoError(t, err)
		require.True(t, merkle.VerifyProof(leaf, proof, idr.Root()), "field %s", name)
	}
}

func TestProofForUnknownField(t *testing.T) {
	idr, err := Build(sampleRecord())
	require.NoError(t, err)
	_, err = idr.ProofFor("ssn")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestCanonicalizationFailureRejectsRecord(t *testing.T) {
	rec := sampleRecord()
	rec.MedicalData = map[string]any{"bad": make(chan int)}
	_, err := Build(rec)
	require.ErrorIs(t, err, ErrCanonicalization)
}

func TestCanonicalLeafDataShape(t *testing.T) {
	data, err := CanonicalLeafData("category", "cardiology")
	require.NoError(t, err)
	require.Equal(t, `category:"cardiology"`, string(data))
}
