package datarecording

var _ DataRecorder = (*sqliteWriter)(nil)
var _ DataReader = (*sqliteReader)(nil)
