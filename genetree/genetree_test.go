package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(tst *testing.T, name, content string) string {
	fn := filepath.Join(tst.TempDir(), name)
	if err := os.WriteFile(fn, []byte(content), 0666); err != nil {
		tst.Fatal(err)
	}
	return fn
}

func TestReadTree(tst *testing.T) {
	t, err := readTree(writeFile(tst, "t.nwk", "((a:1,b:1)90:1,c:2);\n"))
	if err != nil {
		tst.Fatal(err)
	}
	if t.NLeaves() != 3 {
		tst.Error("Expected 3 leaves, got", t.NLeaves())
	}
	if _, err := readTree(writeFile(tst, "bad.nwk", "((a,b);")); err == nil {
		tst.Error("Expected an error for a bad tree")
	}
}

func TestSupportPlot(tst *testing.T) {
	t, err := readTree(writeFile(tst, "t.nwk", "(((a,b)100,c)40,d,e);"))
	if err != nil {
		tst.Fatal(err)
	}
	v := supportValues(t)
	if len(v) != 2 {
		tst.Fatal("Expected 2 support values, got", v)
	}
	fn := filepath.Join(tst.TempDir(), "support.svg")
	if err := supportPlot(t, fn); err != nil {
		tst.Fatal(err)
	}
	if st, err := os.Stat(fn); err != nil || st.Size() == 0 {
		tst.Error("Empty plot file", err)
	}

	t, err = readTree(writeFile(tst, "t.nwk", "((a,b),c);"))
	if err != nil {
		tst.Fatal(err)
	}
	if err := supportPlot(t, fn); err == nil {
		tst.Error("Expected an error without support values")
	}
}
